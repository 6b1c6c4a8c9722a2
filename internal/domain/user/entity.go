// Package user defines agent accounts and their preferences.
package user

import (
	"context"
	"net/mail"
	"time"

	"github.com/dealdeskhq/dealdesk/pkg/errors"
	"github.com/dealdeskhq/dealdesk/pkg/types/common"
)

// Plan is the subscription tier of an account.
type Plan string

const (
	PlanTrial Plan = "trial"
	PlanSolo  Plan = "solo"
	PlanTeam  Plan = "team"
)

// User is an agent account. Identity is established by the external identity
// provider; Subject carries the provider's stable subject claim.
type User struct {
	ID        common.UserID `json:"id"`
	Subject   string        `json:"subject"`
	Email     string        `json:"email"`
	Name      string        `json:"name"`
	Phone     string        `json:"phone,omitempty"`
	Brokerage string        `json:"brokerage,omitempty"`
	Plan      Plan          `json:"plan"`
	// Timezone is an IANA zone name used when rendering deadline emails and
	// resolving "today" for reminder scans.
	Timezone  string    `json:"timezone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks required fields on create/update.
func (u *User) Validate() error {
	if u.ID == "" {
		return errors.InvalidParam("user id is required")
	}
	if u.Subject == "" {
		return errors.InvalidParam("identity subject is required")
	}
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return errors.New(errors.ErrCodeEmailAddressInvalid, "invalid user email").WithDetail(u.Email)
	}
	switch u.Plan {
	case PlanTrial, PlanSolo, PlanTeam:
	default:
		return errors.InvalidParam("unknown subscription plan")
	}
	return nil
}

// Location resolves the user's timezone, falling back to UTC when unset or
// unknown.
func (u *User) Location() *time.Location {
	if u.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Repository is the persistence port for users.
type Repository interface {
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id common.UserID) (*User, error)
	GetBySubject(ctx context.Context, subject string) (*User, error)
	// ListWithReminderContracts returns users owning at least one contract
	// that is neither cancelled nor superseded, for the daily reminder scan.
	ListWithReminderContracts(ctx context.Context) ([]User, error)
}
