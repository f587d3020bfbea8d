// Package auth handles identity: password hashing, signed session tokens,
// and the middleware that resolves a request to an acting user.
package auth

import (
	"time"

	"github.com/landmarktitle/tessa/internal/policy"
)

// User is an account row as the auth layer sees it. PasswordHash never
// leaves the package boundary in JSON form.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	Department   string    `json:"department,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Actor converts the user into the policy layer's acting identity.
func (u User) Actor() policy.Actor {
	return policy.Actor{
		ID:         u.ID,
		Name:       u.Name,
		Role:       policy.Role(u.Role),
		Department: u.Department,
	}
}
