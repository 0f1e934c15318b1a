package domain

import (
	"errors"
	"strings"
	"time"
)

// ProviderGoogle marks accounts created through Google sign-in.
const ProviderGoogle = "google"

// User is a read-only snapshot of an account owned by the user directory service.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Phone     string    `json:"phone,omitempty"`
	Avatar    string    `json:"avatar,omitempty"`
	Role      string    `json:"role,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	BirthDate string    `json:"birthDate,omitempty"`
	Gender    string    `json:"gender,omitempty"`
	Address   string    `json:"address,omitempty"`
	City      string    `json:"city,omitempty"`
	State     string    `json:"state,omitempty"`
	ZipCode   string    `json:"zipCode,omitempty"`
	Country   string    `json:"country,omitempty"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CreateUserInput is the payload sent to the directory to create an account.
type CreateUserInput struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	Phone       string `json:"phone,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`
	Provider    string `json:"provider,omitempty"`
}

// Validate checks the fields the directory requires.
func (in *CreateUserInput) Validate() error {
	if strings.TrimSpace(in.Email) == "" {
		return errors.New("email is required")
	}
	if in.Password == "" {
		return errors.New("password is required")
	}
	return nil
}

// NormalizeEmail lowercases and trims an email for use as a lookup and rate-limit key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Merge combines a freshly fetched user with a cached snapshot of the same account.
//
// The fetched record always wins for identity and security fields (ID, Email, Role,
// Provider, IsActive, CreatedAt, UpdatedAt). Profile fields are taken from fetched
// when non-empty and otherwise filled from cached. A cached snapshot for a different
// account is ignored.
func Merge(fetched, cached User) User {
	if cached.ID != fetched.ID {
		return fetched
	}
	out := fetched
	out.FirstName = firstNonEmpty(fetched.FirstName, cached.FirstName)
	out.LastName = firstNonEmpty(fetched.LastName, cached.LastName)
	out.Phone = firstNonEmpty(fetched.Phone, cached.Phone)
	out.Avatar = firstNonEmpty(fetched.Avatar, cached.Avatar)
	out.BirthDate = firstNonEmpty(fetched.BirthDate, cached.BirthDate)
	out.Gender = firstNonEmpty(fetched.Gender, cached.Gender)
	out.Address = firstNonEmpty(fetched.Address, cached.Address)
	out.City = firstNonEmpty(fetched.City, cached.City)
	out.State = firstNonEmpty(fetched.State, cached.State)
	out.ZipCode = firstNonEmpty(fetched.ZipCode, cached.ZipCode)
	out.Country = firstNonEmpty(fetched.Country, cached.Country)
	return out
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
