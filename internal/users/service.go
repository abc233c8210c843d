package users

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
)

// ErrInvalidUser indicates the supplied identity is missing an identifier.
var ErrInvalidUser = errors.New("users: invalid user")

// ServiceConfig describes the dependencies required for user resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service maintains user records and resolves share-target emails.
type Service struct {
	db    *gorm.DB
	now   func() time.Time
	cache sync.Map
}

// NewService constructs the user directory service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:  cfg.Database,
		now: clock,
	}, nil
}

// EnsureUser records the identity seen in validated token claims, refreshing
// email and display name when they change. Safe to call on every request; a
// small cache skips the database once a user has been seen unchanged.
func (s *Service) EnsureUser(ctx context.Context, userID, email, displayName string) error {
	userID = normalize(userID)
	if userID == "" {
		return ErrInvalidUser
	}
	email = normalizeEmail(email)
	displayName = normalize(displayName)

	cacheKey := userID + "|" + email + "|" + displayName
	if _, seen := s.cache.Load(cacheKey); seen {
		return nil
	}

	var existing User
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		record := User{
			UserID:      userID,
			Email:       email,
			DisplayName: displayName,
		}
		if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
			return err
		}
	} else if err != nil {
		return err
	} else {
		updates := map[string]interface{}{}
		if email != "" && email != existing.Email {
			updates["email"] = email
		}
		if displayName != "" && displayName != existing.DisplayName {
			updates["display_name"] = displayName
		}
		if len(updates) > 0 {
			if err := s.db.WithContext(ctx).Model(&User{}).
				Where("user_id = ?", userID).
				Updates(updates).Error; err != nil {
				return err
			}
		}
	}

	s.cache.Store(cacheKey, struct{}{})
	return nil
}

// LookupUserID resolves an email address to a user identifier. The boolean
// reports whether the email is known; an error means the lookup itself failed.
func (s *Service) LookupUserID(ctx context.Context, email string) (string, bool, error) {
	email = normalizeEmail(email)
	if email == "" {
		return "", false, nil
	}

	var record User
	err := s.db.WithContext(ctx).
		Where("email = ?", email).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return record.UserID, true, nil
}
