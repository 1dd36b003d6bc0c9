package domain

import (
	"context"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"
)

// Role is a principal's authorization role
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User is an authenticated principal
type User struct {
	ID                    string    `json:"id"`
	Username              string    `json:"username"`
	Email                 string    `json:"email"`
	PasswordHash          string    `json:"-"` // bcrypt, never serialized
	Role                  Role      `json:"role"`
	EstablishmentLocation *string   `json:"establishmentLocation,omitempty"`
	EstablishmentLat      *float64  `json:"establishmentLat,omitempty"`
	EstablishmentLng      *float64  `json:"establishmentLng,omitempty"`
	Deleted               bool      `json:"-"`
	CreatedAt             time.Time `json:"createdAt"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

// Public returns a copy with the password hash stripped
func (u *User) Public() *User {
	if u == nil {
		return nil
	}
	out := *u
	out.PasswordHash = ""
	return &out
}

// Profile holds display fields for a principal, one-to-one with User
type Profile struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Deleted   bool      `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UserDetail is the public read model of a principal with its profile
type UserDetail struct {
	*User
	Profile *Profile `json:"profile"`
}

// UserPatch is a partial update of a principal. Password changes go
// through the auth service instead.
type UserPatch struct {
	Username              Optional[string]  `json:"username"`
	Email                 Optional[string]  `json:"email"`
	Role                  Optional[Role]    `json:"role"`
	EstablishmentLocation Optional[string]  `json:"establishmentLocation"`
	EstablishmentLat      Optional[float64] `json:"establishmentLat"`
	EstablishmentLng      Optional[float64] `json:"establishmentLng"`
}

// Apply merges the provided fields into u.
func (p UserPatch) Apply(u *User) {
	applyTo(p.Username, &u.Username)
	applyTo(p.Email, &u.Email)
	applyTo(p.Role, &u.Role)
	applyNullable(p.EstablishmentLocation, &u.EstablishmentLocation)
	applyNullable(p.EstablishmentLat, &u.EstablishmentLat)
	applyNullable(p.EstablishmentLng, &u.EstablishmentLng)
}

// Validate rejects nulls on required fields. Value checks run on the
// merged record through ValidateUser.
func (p UserPatch) Validate() error {
	v := NewValidationError()
	if p.Username.Null {
		v.Add("username", "username cannot be null")
	}
	if p.Email.Null {
		v.Add("email", "email cannot be null")
	}
	if p.Role.Null {
		v.Add("role", "role cannot be null")
	}
	return v.OrNil()
}

// ProfilePatch is a partial update of a profile
type ProfilePatch struct {
	FirstName Optional[string] `json:"firstName"`
	LastName  Optional[string] `json:"lastName"`
}

// Apply merges the provided fields into p.
func (pp ProfilePatch) Apply(p *Profile) {
	applyTo(pp.FirstName, &p.FirstName)
	applyTo(pp.LastName, &p.LastName)
}

// Validate rejects nulls on required fields
func (pp ProfilePatch) Validate() error {
	v := NewValidationError()
	if pp.FirstName.Null {
		v.Add("firstName", "first name cannot be null")
	}
	if pp.LastName.Null {
		v.Add("lastName", "last name cannot be null")
	}
	return v.OrNil()
}

// ValidateUser checks a principal's persisted fields
func ValidateUser(u *User) error {
	v := NewValidationError()
	validateUsername(v, u.Username)
	validateEmail(v, u.Email)
	if !u.Role.Valid() {
		v.Add("role", "role must be user or admin")
	}
	if u.EstablishmentLocation != nil && utf8.RuneCountInString(*u.EstablishmentLocation) > 255 {
		v.Add("establishmentLocation", "establishment location must be at most 255 characters")
	}
	if u.EstablishmentLat != nil && (*u.EstablishmentLat < -90 || *u.EstablishmentLat > 90) {
		v.Add("establishmentLat", "latitude must be between -90 and 90")
	}
	if u.EstablishmentLng != nil && (*u.EstablishmentLng < -180 || *u.EstablishmentLng > 180) {
		v.Add("establishmentLng", "longitude must be between -180 and 180")
	}
	return v.OrNil()
}

// ValidateProfile checks a profile's persisted fields
func ValidateProfile(p *Profile) error {
	v := NewValidationError()
	validateName(v, "firstName", "first name", p.FirstName)
	validateName(v, "lastName", "last name", p.LastName)
	return v.OrNil()
}

// ValidatePassword enforces the minimum password policy
func ValidatePassword(v *ValidationError, field, password string) {
	if password == "" {
		v.Add(field, "password is required")
		return
	}
	if utf8.RuneCountInString(password) < 6 {
		v.Add(field, "password must be at least 6 characters")
	}
}

func validateUsername(v *ValidationError, username string) {
	n := utf8.RuneCountInString(strings.TrimSpace(username))
	switch {
	case n == 0:
		v.Add("username", "username is required")
	case n < 3 || n > 20:
		v.Add("username", "username must be between 3 and 20 characters")
	}
}

func validateEmail(v *ValidationError, email string) {
	if email == "" {
		v.Add("email", "email is required")
		return
	}
	if utf8.RuneCountInString(email) > 100 {
		v.Add("email", "email must be at most 100 characters")
		return
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		v.Add("email", "email must be a valid address")
	}
}

func validateName(v *ValidationError, field, label, value string) {
	n := utf8.RuneCountInString(strings.TrimSpace(value))
	switch {
	case n == 0:
		v.Add(field, label+" is required")
	case n < 2 || n > 50:
		v.Add(field, label+" must be between 2 and 50 characters")
	}
}

// UserRepository defines data access for principals. Every read excludes
// soft-deleted rows except the Exists* uniqueness probes, which see all rows.
type UserRepository interface {
	// CreateWithProfile persists both records atomically
	CreateWithProfile(ctx context.Context, user *User, profile *Profile) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	ExistsUsername(ctx context.Context, username, excludeID string) (bool, error)
	ExistsEmail(ctx context.Context, email, excludeID string) (bool, error)
	List(ctx context.Context) ([]*User, error)
	Update(ctx context.Context, user *User) error
	// SoftDelete flags the user and its profile in one operation
	SoftDelete(ctx context.Context, id string) error
}

// ProfileRepository defines data access for profiles
type ProfileRepository interface {
	GetByUserID(ctx context.Context, userID string) (*Profile, error)
	// List returns every non-deleted profile of a non-deleted user
	List(ctx context.Context) ([]*Profile, error)
	Update(ctx context.Context, profile *Profile) error
}
