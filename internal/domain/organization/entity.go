// Package organization defines brokerages/teams and their memberships.
// Organizations scope shared visibility: members of the same organization
// can view (but not modify) each other's transaction pipelines.
package organization

import (
	"context"
	"time"

	"github.com/dealdeskhq/dealdesk/pkg/errors"
	"github.com/dealdeskhq/dealdesk/pkg/types/common"
)

// Role is a member's permission level within an organization.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Organization is a brokerage or team.
type Organization struct {
	ID        common.OrgID  `json:"id"`
	Name      string        `json:"name"`
	OwnerID   common.UserID `json:"owner_id"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Validate checks required fields on create.
func (o *Organization) Validate() error {
	if o.ID == "" {
		return errors.InvalidParam("organization id is required")
	}
	if o.Name == "" {
		return errors.InvalidParam("organization name is required")
	}
	if o.OwnerID == "" {
		return errors.InvalidParam("organization owner is required")
	}
	return nil
}

// Member ties a user to an organization with a role.
type Member struct {
	OrgID    common.OrgID  `json:"org_id"`
	UserID   common.UserID `json:"user_id"`
	Role     Role          `json:"role"`
	JoinedAt time.Time     `json:"joined_at"`
}

// CanManage reports whether the member may change organization settings and
// membership.
func (m Member) CanManage() bool {
	return m.Role == RoleOwner || m.Role == RoleAdmin
}

// Referral records an agent-to-agent referral of a client lead. Referrals
// are descriptive history; they never affect transaction resolution.
type Referral struct {
	ID           common.ID     `json:"id"`
	FromUserID   common.UserID `json:"from_user_id"`
	ToUserID     common.UserID `json:"to_user_id"`
	ClientName   string        `json:"client_name"`
	ClientEmail  string        `json:"client_email,omitempty"`
	ClientPhone  string        `json:"client_phone,omitempty"`
	Notes        string        `json:"notes,omitempty"`
	FeePercent   float64       `json:"fee_percent,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Repository is the persistence port for organizations, memberships, and
// referrals.
type Repository interface {
	Create(ctx context.Context, org *Organization) error
	GetByID(ctx context.Context, id common.OrgID) (*Organization, error)

	AddMember(ctx context.Context, m *Member) error
	RemoveMember(ctx context.Context, orgID common.OrgID, userID common.UserID) error
	GetMember(ctx context.Context, orgID common.OrgID, userID common.UserID) (*Member, error)
	ListMembers(ctx context.Context, orgID common.OrgID) ([]Member, error)

	CreateReferral(ctx context.Context, r *Referral) error
	ListReferrals(ctx context.Context, userID common.UserID) ([]Referral, error)
}
