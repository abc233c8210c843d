package documents

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var noOpLogger = zap.NewNop()

// IDProvider issues identifiers for newly created documents.
type IDProvider interface {
	NewID() (string, error)
}

// UserDirectory resolves share-target emails to user identifiers.
type UserDirectory interface {
	LookupUserID(ctx context.Context, email string) (string, bool, error)
}

// ServiceConfig describes the dependencies required by the document service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Users      UserDirectory
	Logger     *zap.Logger
}

// Service owns document lifecycle, version ledger, and sharing operations.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	users      UserDirectory
	logger     *zap.Logger
}

// NewService constructs the document service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	if cfg.Users == nil {
		return nil, newServiceError(opServiceNew, "missing_user_directory", errMissingUserDirectory)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		users:      cfg.Users,
		logger:     logger,
	}, nil
}

// Create persists a new document owned by ownerID with empty content.
func (s *Service) Create(ctx context.Context, ownerID UserID, rawTitle string) (Document, error) {
	title, err := NewTitle(rawTitle)
	if err != nil {
		return Document{}, validationError(opCreate, "invalid_title", err)
	}

	documentID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err)
		return Document{}, newServiceError(opCreate, "id_generation_failed", err)
	}

	now := s.clock().UTC()
	document := Document{
		DocumentID:     documentID,
		Title:          title,
		Content:        "",
		IsRichText:     true,
		OwnerID:        ownerID.String(),
		CurrentVersion: 1,
		LastModified:   now,
		CreatedAt:      now,
	}
	if err := s.db.WithContext(ctx).Create(&document).Error; err != nil {
		s.logError(opCreate, "insert_failed", err, zap.String("owner_id", ownerID.String()))
		return Document{}, newServiceError(opCreate, "insert_failed", err)
	}
	return document, nil
}

// List returns every document the user owns or has been granted access to,
// most recently modified first.
func (s *Service) List(ctx context.Context, userID UserID) ([]Document, error) {
	var results []Document
	err := s.db.WithContext(ctx).
		Preload("Grants").
		Where("owner_id = ? OR document_id IN (?)",
			userID.String(),
			s.db.Model(&ShareGrant{}).Select("document_id").Where("user_id = ?", userID.String()),
		).
		Order("last_modified DESC").
		Find(&results).Error
	if err != nil {
		s.logError(opList, "query_failed", err, zap.String("user_id", userID.String()))
		return nil, newServiceError(opList, "query_failed", err)
	}
	return results, nil
}

// Get loads a single document, enforcing view access.
func (s *Service) Get(ctx context.Context, userID UserID, documentID DocumentID) (Document, error) {
	document, err := s.loadDocument(s.db.WithContext(ctx), opGet, documentID)
	if err != nil {
		return Document{}, err
	}
	if !document.CanView(userID.String()) {
		return Document{}, forbiddenError(opGet, "view_denied")
	}
	return document, nil
}

// UpdateRequest carries the optional field changes for a document update.
// Nil pointers leave the corresponding field untouched.
type UpdateRequest struct {
	Title         *string
	Content       *string
	IsRichText    *bool
	CreateVersion bool
}

// Update applies the requested field changes, snapshotting the prior state
// first whenever the change is significant or a snapshot was asked for.
func (s *Service) Update(ctx context.Context, userID UserID, documentID DocumentID, request UpdateRequest) (Document, error) {
	if request.Title != nil {
		if _, err := NewTitle(*request.Title); err != nil {
			return Document{}, validationError(opUpdate, "invalid_title", err)
		}
	}

	var updated Document
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		document, err := s.loadDocumentForUpdate(tx, opUpdate, documentID)
		if err != nil {
			return err
		}
		if !document.CanEdit(userID.String()) {
			return forbiddenError(opUpdate, "edit_denied")
		}

		now := s.clock().UTC()
		if shouldSnapshot(&document, request) {
			if err := s.appendVersion(tx, &document, userID.String(), now); err != nil {
				return err
			}
		}

		if request.Title != nil {
			title, err := NewTitle(*request.Title)
			if err != nil {
				return validationError(opUpdate, "invalid_title", err)
			}
			document.Title = title
		}
		if request.Content != nil {
			document.Content = *request.Content
		}
		if request.IsRichText != nil {
			document.IsRichText = *request.IsRichText
		}
		document.LastModified = now

		if err := tx.Save(&document).Error; err != nil {
			s.logError(opUpdate, "save_failed", err, zap.String("document_id", documentID.String()))
			return newServiceError(opUpdate, "save_failed", err)
		}
		updated = document
		return nil
	})
	if txErr != nil {
		return Document{}, txErr
	}
	return updated, nil
}

// Delete removes the document together with its versions and share grants.
// Only the owner may delete.
func (s *Service) Delete(ctx context.Context, userID UserID, documentID DocumentID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		document, err := s.loadDocumentForUpdate(tx, opDelete, documentID)
		if err != nil {
			return err
		}
		if !document.CanDelete(userID.String()) {
			return forbiddenError(opDelete, "owner_required")
		}

		if err := tx.Where("document_id = ?", documentID.String()).Delete(&Version{}).Error; err != nil {
			s.logError(opDelete, "version_delete_failed", err, zap.String("document_id", documentID.String()))
			return newServiceError(opDelete, "version_delete_failed", err)
		}
		if err := tx.Where("document_id = ?", documentID.String()).Delete(&ShareGrant{}).Error; err != nil {
			s.logError(opDelete, "grant_delete_failed", err, zap.String("document_id", documentID.String()))
			return newServiceError(opDelete, "grant_delete_failed", err)
		}
		if err := tx.Delete(&Document{}, "document_id = ?", documentID.String()).Error; err != nil {
			s.logError(opDelete, "delete_failed", err, zap.String("document_id", documentID.String()))
			return newServiceError(opDelete, "delete_failed", err)
		}
		return nil
	})
}

func (s *Service) loadDocument(tx *gorm.DB, operation string, documentID DocumentID) (Document, error) {
	var document Document
	err := tx.Preload("Grants").
		Where("document_id = ?", documentID.String()).
		Take(&document).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Document{}, notFoundError(operation, "document_not_found")
	}
	if err != nil {
		s.logError(operation, "document_select_failed", err, zap.String("document_id", documentID.String()))
		return Document{}, newServiceError(operation, "document_select_failed", err)
	}
	return document, nil
}

func (s *Service) loadDocumentForUpdate(tx *gorm.DB, operation string, documentID DocumentID) (Document, error) {
	var document Document
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Grants").
		Where("document_id = ?", documentID.String()).
		Take(&document).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Document{}, notFoundError(operation, "document_not_found")
	}
	if err != nil {
		s.logError(operation, "document_select_failed", err, zap.String("document_id", documentID.String()))
		return Document{}, newServiceError(operation, "document_select_failed", err)
	}
	return document, nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("document service error", attrs...)
}
