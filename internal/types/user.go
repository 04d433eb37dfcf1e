package types

import "time"

// User is an account registered on the backup server. The email is the
// account key that scopes every collection.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email" validate:"required,email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Credentials is the login or registration payload.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Name     string `json:"name,omitempty"`
}

// Validate checks the credential fields.
func (c *Credentials) Validate() error { return check("credentials", c) }
