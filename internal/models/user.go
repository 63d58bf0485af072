package models

import (
	"github.com/statusdeck-dev/statusdeck/internal/auth"
	"gorm.io/gorm"
)

type User struct {
	gorm.Model

	TenantID     uint      `gorm:"not null;index"`
	Name         string    `gorm:"not null"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	Role         auth.Role `gorm:"not null;size:50;default:viewer"`
}
