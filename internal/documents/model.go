package documents

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Permission enumerates the access levels a document can be shared with.
type Permission string

const (
	// PermissionView grants read-only access to a shared document.
	PermissionView Permission = "view"
	// PermissionEdit grants content modification rights to a shared document.
	PermissionEdit Permission = "edit"
)

const (
	maxIdentifierLength = 190
	maxTitleLength      = 100

	placeholderTitle   = "Untitled"
	placeholderContent = " "
)

var (
	// ErrInvalidDocumentID indicates that a document identifier is empty or exceeds storage bounds.
	ErrInvalidDocumentID = errors.New("documents: invalid document id")
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("documents: invalid user id")
	// ErrInvalidTitle indicates that a title is empty or longer than the allowed maximum.
	ErrInvalidTitle = errors.New("documents: invalid title")
	// ErrInvalidPermission indicates an unrecognized sharing permission value.
	ErrInvalidPermission = errors.New("documents: invalid permission")
)

// ParsePermission validates raw input and returns a Permission.
// Empty input falls back to view, matching the sharing default.
func ParsePermission(rawInput string) (Permission, error) {
	switch strings.ToLower(strings.TrimSpace(rawInput)) {
	case "":
		return PermissionView, nil
	case string(PermissionView):
		return PermissionView, nil
	case string(PermissionEdit):
		return PermissionEdit, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPermission, rawInput)
	}
}

// DocumentID represents a validated document identifier.
type DocumentID string

// NewDocumentID validates raw input and returns a DocumentID.
func NewDocumentID(rawInput string) (DocumentID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidDocumentID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidDocumentID, maxIdentifierLength)
	}
	return DocumentID(trimmed), nil
}

// String returns the underlying string identifier.
func (id DocumentID) String() string {
	return string(id)
}

// UserID represents a validated user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// NewTitle validates raw input and returns a trimmed document title.
func NewTitle(rawInput string) (string, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidTitle)
	}
	if len(trimmed) > maxTitleLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidTitle, maxTitleLength)
	}
	return trimmed, nil
}

// Document models the persisted document with its sharing state.
// Version history lives in the document_versions table and is loaded on demand.
type Document struct {
	DocumentID     string       `gorm:"column:document_id;primaryKey;size:190;not null"`
	Title          string       `gorm:"column:title;size:100;not null"`
	Content        string       `gorm:"column:content;type:text;not null"`
	IsRichText     bool         `gorm:"column:is_rich_text;not null;default:true"`
	OwnerID        string       `gorm:"column:owner_id;size:190;not null;index:idx_documents_owner"`
	LinkToken      string       `gorm:"column:link_token;size:64;not null;default:'';index:idx_documents_link_token"`
	LinkActive     bool         `gorm:"column:link_active;not null;default:false"`
	CurrentVersion int64        `gorm:"column:current_version;not null;default:1"`
	LastModified   time.Time    `gorm:"column:last_modified;not null"`
	CreatedAt      time.Time    `gorm:"column:created_at;not null"`
	Grants         []ShareGrant `gorm:"foreignKey:DocumentID;references:DocumentID"`
}

// TableName provides the explicit table binding for GORM.
func (Document) TableName() string {
	return "documents"
}

// ShareGrant records one per-user sharing entry, unique per document and user.
type ShareGrant struct {
	DocumentID string     `gorm:"column:document_id;primaryKey;size:190;not null"`
	UserID     string     `gorm:"column:user_id;primaryKey;size:190;not null;index:idx_share_grants_user"`
	Permission Permission `gorm:"column:permission;size:10;not null;default:'view'"`
	CreatedAt  time.Time  `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (ShareGrant) TableName() string {
	return "document_share_grants"
}

// Version captures an immutable snapshot of a document's editable fields.
// Rows are append-only; nothing in the service edits or deletes them.
type Version struct {
	DocumentID    string    `gorm:"column:document_id;primaryKey;size:190;not null"`
	VersionNumber int64     `gorm:"column:version_number;primaryKey;not null"`
	Title         string    `gorm:"column:title;size:100;not null"`
	Content       string    `gorm:"column:content;type:text;not null"`
	IsRichText    bool      `gorm:"column:is_rich_text;not null;default:true"`
	CreatedBy     string    `gorm:"column:created_by;size:190;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Version) TableName() string {
	return "document_versions"
}

// VersionSummary is the list-view projection of a Version; content is omitted
// to keep history listings small.
type VersionSummary struct {
	VersionNumber int64     `json:"versionNumber"`
	Title         string    `json:"title"`
	IsRichText    bool      `json:"isRichText"`
	CreatedAt     time.Time `json:"createdAt"`
	CreatedBy     string    `json:"createdBy"`
}

// SharedView is the reduced projection returned for shareable-link reads.
// It never exposes the owner, grants, or version history.
type SharedView struct {
	DocumentID   string    `json:"id"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	IsRichText   bool      `json:"isRichText"`
	LastModified time.Time `json:"lastModified"`
}
