package users

import (
	"strings"
	"time"
)

// User captures the identity record behind a document owner or share grantee.
// Registration and login live in the external auth service; this backend only
// keeps the mapping needed to resolve share targets and display names.
type User struct {
	UserID      string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	Email       string    `gorm:"column:email;size:320;not null;uniqueIndex:idx_users_email"`
	DisplayName string    `gorm:"column:display_name;size:320"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing user records.
func (User) TableName() string {
	return "users"
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
