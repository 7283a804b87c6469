package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MinPrivilege   = 0
	MaxPrivilege   = 10
	MaxUsernameLen = 20
	MaxPasswordLen = 30
)

// User is an account in the directory. The password is stored as a bcrypt hash.
type User struct {
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Name         string    `json:"name" db:"name"`
	Mail         string    `json:"mail" db:"mail"`
	Privilege    int       `json:"privilege" db:"privilege"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Profile is the public view of a user
type Profile struct {
	Username  string `json:"username"`
	Name      string `json:"name"`
	Mail      string `json:"mail"`
	Privilege int    `json:"privilege"`
}

// ToProfile strips credentials
func (u *User) ToProfile() *Profile {
	return &Profile{
		Username:  u.Username,
		Name:      u.Name,
		Mail:      u.Mail,
		Privilege: u.Privilege,
	}
}

// NewUserRequest is the payload of add_user
type NewUserRequest struct {
	Caller    string `json:"caller"`
	Username  string `json:"username" binding:"required"`
	Password  string `json:"password" binding:"required"`
	Name      string `json:"name" binding:"required"`
	Mail      string `json:"mail" binding:"required"`
	Privilege int    `json:"privilege"`
}

// Validate checks field shapes. Privilege rules live in the account directory.
func (r *NewUserRequest) Validate() error {
	r.Username = strings.TrimSpace(r.Username)
	if r.Username == "" || len(r.Username) > MaxUsernameLen {
		return fmt.Errorf("username must be 1-%d characters", MaxUsernameLen)
	}
	if err := validatePassword(r.Password); err != nil {
		return err
	}
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("name is required")
	}
	if !strings.Contains(r.Mail, "@") {
		return errors.New("mail must be an email address")
	}
	return ValidatePrivilege(r.Privilege)
}

// ProfileUpdate carries the optional fields of modify_profile
type ProfileUpdate struct {
	Password  *string `json:"password,omitempty"`
	Name      *string `json:"name,omitempty"`
	Mail      *string `json:"mail,omitempty"`
	Privilege *int    `json:"privilege,omitempty"`
}

// Validate checks the fields that are present
func (u *ProfileUpdate) Validate() error {
	if u.Password != nil {
		if err := validatePassword(*u.Password); err != nil {
			return err
		}
	}
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return errors.New("name cannot be blank")
	}
	if u.Mail != nil && !strings.Contains(*u.Mail, "@") {
		return errors.New("mail must be an email address")
	}
	if u.Privilege != nil {
		return ValidatePrivilege(*u.Privilege)
	}
	return nil
}

// IsEmpty reports whether the update changes nothing
func (u *ProfileUpdate) IsEmpty() bool {
	return u.Password == nil && u.Name == nil && u.Mail == nil && u.Privilege == nil
}

// ValidatePrivilege checks the 0..10 range
func ValidatePrivilege(p int) error {
	if p < MinPrivilege || p > MaxPrivilege {
		return fmt.Errorf("privilege must be between %d and %d", MinPrivilege, MaxPrivilege)
	}
	return nil
}

func validatePassword(p string) error {
	if p == "" || utf8.RuneCountInString(p) > MaxPasswordLen {
		return fmt.Errorf("password must be 1-%d characters", MaxPasswordLen)
	}
	return nil
}

// LoginRequest is the payload of login
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}
