package documents

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	linkTokenLength   = 26
	linkTokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// Bound on regeneration attempts when a candidate token already exists.
	maxLinkTokenAttempts = 5
)

var errLinkTokenExhausted = errors.New("documents: unable to produce a unique link token")

func generateLinkToken() (string, error) {
	var builder strings.Builder
	builder.Grow(linkTokenLength)
	alphabetSize := big.NewInt(int64(len(linkTokenAlphabet)))
	for i := 0; i < linkTokenLength; i++ {
		index, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("documents: link token generation failed: %w", err)
		}
		builder.WriteByte(linkTokenAlphabet[index.Int64()])
	}
	return builder.String(), nil
}

// GenerateShareableLink issues a fresh link token for the document and
// activates it, invalidating any previously issued token. Owner only.
func (s *Service) GenerateShareableLink(ctx context.Context, userID UserID, documentID DocumentID) (string, error) {
	var token string
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		document, err := s.loadDocumentForUpdate(tx, opGenerateLink, documentID)
		if err != nil {
			return err
		}
		if !document.CanDelete(userID.String()) {
			return forbiddenError(opGenerateLink, "owner_required")
		}

		for attempt := 0; attempt < maxLinkTokenAttempts; attempt++ {
			candidate, err := generateLinkToken()
			if err != nil {
				s.logError(opGenerateLink, "token_generation_failed", err)
				return newServiceError(opGenerateLink, "token_generation_failed", err)
			}
			var count int64
			if err := tx.Model(&Document{}).Where("link_token = ?", candidate).Count(&count).Error; err != nil {
				s.logError(opGenerateLink, "token_lookup_failed", err)
				return newServiceError(opGenerateLink, "token_lookup_failed", err)
			}
			if count == 0 {
				token = candidate
				break
			}
		}
		if token == "" {
			s.logError(opGenerateLink, "token_exhausted", errLinkTokenExhausted)
			return newServiceError(opGenerateLink, "token_exhausted", errLinkTokenExhausted)
		}

		document.LinkToken = token
		document.LinkActive = true
		document.LastModified = s.clock().UTC()
		if err := tx.Save(&document).Error; err != nil {
			s.logError(opGenerateLink, "save_failed", err, zap.String("document_id", documentID.String()))
			return newServiceError(opGenerateLink, "save_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return "", txErr
	}
	return token, nil
}

// ShareWithUser grants or updates access for the user behind the given email.
// A repeat share for the same user updates the grant's permission in place.
// Owner only.
func (s *Service) ShareWithUser(ctx context.Context, ownerID UserID, documentID DocumentID, email string, permission Permission) (Document, error) {
	trimmedEmail := strings.TrimSpace(email)
	if trimmedEmail == "" {
		return Document{}, validationError(opShare, "missing_email", errors.New("email is required"))
	}

	targetUserID, found, err := s.users.LookupUserID(ctx, trimmedEmail)
	if err != nil {
		s.logError(opShare, "user_lookup_failed", err)
		return Document{}, newServiceError(opShare, "user_lookup_failed", err)
	}
	if !found {
		return Document{}, notFoundError(opShare, "user_not_found")
	}

	var shared Document
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		document, err := s.loadDocumentForUpdate(tx, opShare, documentID)
		if err != nil {
			return err
		}
		if !document.CanDelete(ownerID.String()) {
			return forbiddenError(opShare, "owner_required")
		}

		var existing ShareGrant
		err = tx.Where("document_id = ? AND user_id = ?", documentID.String(), targetUserID).
			Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			grant := ShareGrant{
				DocumentID: documentID.String(),
				UserID:     targetUserID,
				Permission: permission,
				CreatedAt:  s.clock().UTC(),
			}
			if err := tx.Create(&grant).Error; err != nil {
				s.logError(opShare, "grant_insert_failed", err, zap.String("document_id", documentID.String()))
				return newServiceError(opShare, "grant_insert_failed", err)
			}
		case err != nil:
			s.logError(opShare, "grant_select_failed", err, zap.String("document_id", documentID.String()))
			return newServiceError(opShare, "grant_select_failed", err)
		default:
			if err := tx.Model(&ShareGrant{}).
				Where("document_id = ? AND user_id = ?", documentID.String(), targetUserID).
				Update("permission", permission).Error; err != nil {
				s.logError(opShare, "grant_update_failed", err, zap.String("document_id", documentID.String()))
				return newServiceError(opShare, "grant_update_failed", err)
			}
		}

		reloaded, err := s.loadDocument(tx, opShare, documentID)
		if err != nil {
			return err
		}
		shared = reloaded
		return nil
	})
	if txErr != nil {
		return Document{}, txErr
	}
	return shared, nil
}

// ResolveSharedDocument looks up a document by an active shareable-link token.
// Public path: the result is a reduced view that never exposes the owner,
// grants, or version history.
func (s *Service) ResolveSharedDocument(ctx context.Context, token string) (SharedView, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return SharedView{}, notFoundError(opResolveShared, "link_not_found")
	}

	var document Document
	err := s.db.WithContext(ctx).
		Where("link_token = ? AND link_active = ?", trimmed, true).
		Take(&document).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SharedView{}, notFoundError(opResolveShared, "link_not_found")
	}
	if err != nil {
		s.logError(opResolveShared, "query_failed", err)
		return SharedView{}, newServiceError(opResolveShared, "query_failed", err)
	}

	return SharedView{
		DocumentID:   document.DocumentID,
		Title:        document.Title,
		Content:      document.Content,
		IsRichText:   document.IsRichText,
		LastModified: document.LastModified,
	}, nil
}
