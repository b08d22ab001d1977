package models

import (
	"github.com/google/uuid"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents a registered customer or administrator.
type User struct {
	BaseModel
	Name         string        `json:"name"`
	Email        string        `gorm:"uniqueIndex" json:"email"`
	PasswordHash string        `json:"-"`
	Image        string        `json:"image"`
	Role         string        `gorm:"default:user" json:"role"`
	Addresses    []UserAddress `gorm:"constraint:OnDelete:CASCADE" json:"addresses,omitempty"`
}

// IsAdmin reports whether the user carries the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// UserAddress is one entry of a user's address book.
type UserAddress struct {
	BaseModel
	UserID    uuid.UUID `gorm:"type:uuid;index" json:"userId"`
	Type      string    `json:"type"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Street    string    `json:"street"`
	City      string    `json:"city"`
	District  string    `json:"district"`
	Zip       string    `json:"zip"`
	Country   string    `json:"country"`
	IsDefault bool      `json:"isDefault"`
}
