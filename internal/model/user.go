package model

import "time"

// User is a subject of the external identity provider. Rows are created on
// first authenticated request; the provider owns credentials.
type User struct {
	ID        string    `gorm:"primaryKey;size:128" json:"id"`
	Email     string    `gorm:"size:256;index" json:"email"`
	Name      string    `gorm:"size:256" json:"name"`
	Provider  string    `gorm:"size:32;not null" json:"provider"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
