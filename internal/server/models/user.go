// Package models holds the records exchanged between the credential store
// and the service layer.
package models

import "time"

// User is a registered account as stored. PasswordHash must not leave the
// store and service layers; use Public for anything sent to a client.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
}

// PublicUser is the client-visible projection of a User.
type PublicUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Email: u.Email, Name: u.Name}
}
