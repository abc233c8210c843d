package documents

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// shouldSnapshot decides, against the prior document state, whether an update
// warrants a version snapshot: an explicit request, a title change, a content
// length change, or a rich-text flag change.
func shouldSnapshot(document *Document, request UpdateRequest) bool {
	if request.CreateVersion {
		return true
	}
	if request.Title != nil && *request.Title != document.Title {
		return true
	}
	if request.Content != nil && len(*request.Content) != len(document.Content) {
		return true
	}
	if request.IsRichText != nil && *request.IsRichText != document.IsRichText {
		return true
	}
	return false
}

// appendVersion snapshots the document's current editable fields as an
// immutable version stamped with the current version counter, then advances
// the counter. Empty content and title are replaced with placeholders so
// persisted snapshots always satisfy the non-empty column constraints.
// The caller is responsible for saving the mutated document.
func (s *Service) appendVersion(tx *gorm.DB, document *Document, createdBy string, now time.Time) error {
	content := document.Content
	if content == "" {
		content = placeholderContent
	}
	title := document.Title
	if title == "" {
		title = placeholderTitle
	}

	version := Version{
		DocumentID:    document.DocumentID,
		VersionNumber: document.CurrentVersion,
		Title:         title,
		Content:       content,
		IsRichText:    document.IsRichText,
		CreatedBy:     createdBy,
		CreatedAt:     now,
	}
	if err := tx.Create(&version).Error; err != nil {
		s.logError(opUpdate, "version_insert_failed", err,
			zap.String("document_id", document.DocumentID),
			zap.Int64("version_number", version.VersionNumber))
		return newServiceError(opUpdate, "version_insert_failed", err)
	}

	document.CurrentVersion++
	return nil
}

// VersionHistory pairs the document's current version counter with the list
// of stored snapshots, newest first.
type VersionHistory struct {
	CurrentVersion int64
	Versions       []VersionSummary
}

// ListVersions returns the version history for a document the user can view.
// Snapshot content is omitted from the listing; fetch a single version for it.
func (s *Service) ListVersions(ctx context.Context, userID UserID, documentID DocumentID) (VersionHistory, error) {
	document, err := s.loadDocument(s.db.WithContext(ctx), opListVersions, documentID)
	if err != nil {
		return VersionHistory{}, err
	}
	if !document.CanView(userID.String()) {
		return VersionHistory{}, forbiddenError(opListVersions, "view_denied")
	}

	var versions []Version
	if err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID.String()).
		Order("version_number DESC").
		Find(&versions).Error; err != nil {
		s.logError(opListVersions, "query_failed", err, zap.String("document_id", documentID.String()))
		return VersionHistory{}, newServiceError(opListVersions, "query_failed", err)
	}

	history := VersionHistory{
		CurrentVersion: document.CurrentVersion,
		Versions:       make([]VersionSummary, 0, len(versions)),
	}
	for _, version := range versions {
		history.Versions = append(history.Versions, VersionSummary{
			VersionNumber: version.VersionNumber,
			Title:         version.Title,
			IsRichText:    version.IsRichText,
			CreatedAt:     version.CreatedAt,
			CreatedBy:     version.CreatedBy,
		})
	}
	return history, nil
}

// GetVersion returns one snapshot, content included, by exact version number.
func (s *Service) GetVersion(ctx context.Context, userID UserID, documentID DocumentID, versionNumber int64) (Version, error) {
	document, err := s.loadDocument(s.db.WithContext(ctx), opGetVersion, documentID)
	if err != nil {
		return Version{}, err
	}
	if !document.CanView(userID.String()) {
		return Version{}, forbiddenError(opGetVersion, "view_denied")
	}

	var version Version
	err = s.db.WithContext(ctx).
		Where("document_id = ? AND version_number = ?", documentID.String(), versionNumber).
		Take(&version).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Version{}, notFoundError(opGetVersion, "version_not_found")
	}
	if err != nil {
		s.logError(opGetVersion, "query_failed", err,
			zap.String("document_id", documentID.String()),
			zap.Int64("version_number", versionNumber))
		return Version{}, newServiceError(opGetVersion, "query_failed", err)
	}
	return version, nil
}

// RestoreVersion rewinds the document to the named snapshot. The pre-restore
// state is snapshotted first, so a restore is always reversible.
func (s *Service) RestoreVersion(ctx context.Context, userID UserID, documentID DocumentID, versionNumber int64) (Document, error) {
	var restored Document
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		document, err := s.loadDocumentForUpdate(tx, opRestoreVersion, documentID)
		if err != nil {
			return err
		}
		if !document.CanEdit(userID.String()) {
			return forbiddenError(opRestoreVersion, "edit_denied")
		}

		var target Version
		err = tx.Where("document_id = ? AND version_number = ?", documentID.String(), versionNumber).
			Take(&target).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFoundError(opRestoreVersion, "version_not_found")
		}
		if err != nil {
			s.logError(opRestoreVersion, "version_select_failed", err,
				zap.String("document_id", documentID.String()),
				zap.Int64("version_number", versionNumber))
			return newServiceError(opRestoreVersion, "version_select_failed", err)
		}

		now := s.clock().UTC()
		if err := s.appendVersion(tx, &document, userID.String(), now); err != nil {
			return err
		}

		document.Title = target.Title
		document.Content = target.Content
		document.IsRichText = target.IsRichText
		document.LastModified = now

		if err := tx.Save(&document).Error; err != nil {
			s.logError(opRestoreVersion, "save_failed", err, zap.String("document_id", documentID.String()))
			return newServiceError(opRestoreVersion, "save_failed", err)
		}
		restored = document
		return nil
	})
	if txErr != nil {
		return Document{}, txErr
	}
	return restored, nil
}
