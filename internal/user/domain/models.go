package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// User is a loyalty program member. Every user owns exactly one wallet,
// created in the same transaction as registration.
type User struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	Email     string       `json:"email" gorm:"not null;uniqueIndex:ux_users_email"`
	Name      string       `json:"name" gorm:"not null"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }
