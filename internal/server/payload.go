package server

import (
	"time"

	"github.com/Sarvinsurya/docs-sync-backend/internal/documents"
)

type sharedWithPayload struct {
	UserID     string `json:"userId"`
	Permission string `json:"permission"`
}

type shareableLinkPayload struct {
	Token    *string `json:"token"`
	IsActive bool    `json:"isActive"`
}

type documentPayload struct {
	ID             string               `json:"id"`
	Title          string               `json:"title"`
	Content        string               `json:"content"`
	IsRichText     bool                 `json:"isRichText"`
	Owner          string               `json:"owner"`
	SharedWith     []sharedWithPayload  `json:"sharedWith"`
	ShareableLink  shareableLinkPayload `json:"shareableLink"`
	CurrentVersion int64                `json:"currentVersion"`
	LastModified   time.Time            `json:"lastModified"`
	CreatedAt      time.Time            `json:"createdAt"`
}

func documentPayloadFrom(document documents.Document) documentPayload {
	sharedWith := make([]sharedWithPayload, 0, len(document.Grants))
	for _, grant := range document.Grants {
		sharedWith = append(sharedWith, sharedWithPayload{
			UserID:     grant.UserID,
			Permission: string(grant.Permission),
		})
	}

	link := shareableLinkPayload{IsActive: document.LinkActive}
	if document.LinkToken != "" {
		token := document.LinkToken
		link.Token = &token
	}

	return documentPayload{
		ID:             document.DocumentID,
		Title:          document.Title,
		Content:        document.Content,
		IsRichText:     document.IsRichText,
		Owner:          document.OwnerID,
		SharedWith:     sharedWith,
		ShareableLink:  link,
		CurrentVersion: document.CurrentVersion,
		LastModified:   document.LastModified,
		CreatedAt:      document.CreatedAt,
	}
}

type versionPayload struct {
	VersionNumber int64     `json:"versionNumber"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	IsRichText    bool      `json:"isRichText"`
	CreatedBy     string    `json:"createdBy"`
	CreatedAt     time.Time `json:"createdAt"`
}

func versionPayloadFrom(version documents.Version) versionPayload {
	return versionPayload{
		VersionNumber: version.VersionNumber,
		Title:         version.Title,
		Content:       version.Content,
		IsRichText:    version.IsRichText,
		CreatedBy:     version.CreatedBy,
		CreatedAt:     version.CreatedAt,
	}
}
