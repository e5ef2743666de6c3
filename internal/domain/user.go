package domain

import "time"

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	FirstName    string     `json:"firstName"`
	LastName     string     `json:"lastName"`
	Phone        string     `json:"phone,omitempty"`
	Timezone     string     `json:"timezone,omitempty"`
	Language     string     `json:"language,omitempty"`
	AvatarURL    string     `json:"avatarUrl,omitempty"`
	IsActive     bool       `json:"isActive"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	DeletedAt    *time.Time `json:"-"`
}

// Identity es el usuario autenticado que el middleware adjunta al request.
type Identity struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
}

// ProfileUpdate lista los campos editables del perfil; nil significa sin cambios.
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
	Phone     *string
	Timezone  *string
	Language  *string
}
