// Package user is the application service for accounts, organization
// membership, and referrals.
package user

import (
	"context"

	"github.com/dealdeskhq/dealdesk/internal/infrastructure/auth"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/logging"
	domainorg "github.com/dealdeskhq/dealdesk/internal/domain/organization"
	domainuser "github.com/dealdeskhq/dealdesk/internal/domain/user"
	"github.com/dealdeskhq/dealdesk/pkg/errors"
	"github.com/dealdeskhq/dealdesk/pkg/types/common"
)

// ProfileInput carries the editable profile fields.
type ProfileInput struct {
	Name      string `json:"name"`
	Phone     string `json:"phone,omitempty"`
	Brokerage string `json:"brokerage,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
}

// ReferralInput creates an agent-to-agent referral.
type ReferralInput struct {
	ToUserID    common.UserID `json:"to_user_id"`
	ClientName  string        `json:"client_name"`
	ClientEmail string        `json:"client_email,omitempty"`
	ClientPhone string        `json:"client_phone,omitempty"`
	Notes       string        `json:"notes,omitempty"`
	FeePercent  float64       `json:"fee_percent,omitempty"`
}

// Service is the application-level account API.
type Service interface {
	// EnsureUser finds the account for verified token claims, provisioning
	// it on first sight.
	EnsureUser(ctx context.Context, claims *auth.Claims) (*domainuser.User, error)

	GetProfile(ctx context.Context, id common.UserID) (*domainuser.User, error)
	UpdateProfile(ctx context.Context, id common.UserID, input *ProfileInput) (*domainuser.User, error)

	CreateOrganization(ctx context.Context, ownerID common.UserID, name string) (*domainorg.Organization, error)
	AddMember(ctx context.Context, actorID common.UserID, orgID common.OrgID, userID common.UserID, role domainorg.Role) error
	RemoveMember(ctx context.Context, actorID common.UserID, orgID common.OrgID, userID common.UserID) error
	ListMembers(ctx context.Context, actorID common.UserID, orgID common.OrgID) ([]domainorg.Member, error)

	CreateReferral(ctx context.Context, fromUserID common.UserID, input *ReferralInput) (*domainorg.Referral, error)
	ListReferrals(ctx context.Context, userID common.UserID) ([]domainorg.Referral, error)
}

type service struct {
	users  domainuser.Repository
	orgs   domainorg.Repository
	logger logging.Logger
}

// NewService wires the user service.
func NewService(users domainuser.Repository, orgs domainorg.Repository, log logging.Logger) Service {
	return &service{users: users, orgs: orgs, logger: log}
}

func (s *service) EnsureUser(ctx context.Context, claims *auth.Claims) (*domainuser.User, error) {
	if claims == nil || claims.Subject == "" {
		return nil, errors.Unauthorized("missing token claims")
	}

	u, err := s.users.GetBySubject(ctx, claims.Subject)
	if err == nil {
		return u, nil
	}
	if !errors.IsCode(err, errors.ErrCodeUserNotFound) && !errors.IsCode(err, errors.ErrCodeNotFound) {
		return nil, err
	}

	u = &domainuser.User{
		ID:      common.UserID(common.NewID()),
		Subject: claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
		Plan:    domainuser.PlanTrial,
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, u); err != nil {
		// A concurrent first request may have provisioned it already.
		if errors.IsCode(err, errors.ErrCodeConflict) {
			return s.users.GetBySubject(ctx, claims.Subject)
		}
		return nil, err
	}
	s.logger.Info("user provisioned",
		logging.String("user_id", string(u.ID)),
		logging.String("subject", u.Subject),
	)
	return u, nil
}

func (s *service) GetProfile(ctx context.Context, id common.UserID) (*domainuser.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *service) UpdateProfile(ctx context.Context, id common.UserID, input *ProfileInput) (*domainuser.User, error) {
	if input == nil {
		return nil, errors.InvalidParam("profile input is required")
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Name = input.Name
	u.Phone = input.Phone
	u.Brokerage = input.Brokerage
	u.Timezone = input.Timezone
	if err := u.Validate(); err != nil {
		return nil, err
	}
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *service) CreateOrganization(ctx context.Context, ownerID common.UserID, name string) (*domainorg.Organization, error) {
	org := &domainorg.Organization{
		ID:      common.OrgID(common.NewID()),
		Name:    name,
		OwnerID: ownerID,
	}
	if err := org.Validate(); err != nil {
		return nil, err
	}
	if err := s.orgs.Create(ctx, org); err != nil {
		return nil, err
	}
	if err := s.orgs.AddMember(ctx, &domainorg.Member{
		OrgID:  org.ID,
		UserID: ownerID,
		Role:   domainorg.RoleOwner,
	}); err != nil {
		return nil, err
	}
	return org, nil
}

func (s *service) AddMember(ctx context.Context, actorID common.UserID, orgID common.OrgID, userID common.UserID, role domainorg.Role) error {
	if role != domainorg.RoleAdmin && role != domainorg.RoleMember {
		return errors.InvalidParam("role must be admin or member")
	}
	if err := s.requireManager(ctx, actorID, orgID); err != nil {
		return err
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return err
	}
	return s.orgs.AddMember(ctx, &domainorg.Member{OrgID: orgID, UserID: userID, Role: role})
}

func (s *service) RemoveMember(ctx context.Context, actorID common.UserID, orgID common.OrgID, userID common.UserID) error {
	if err := s.requireManager(ctx, actorID, orgID); err != nil {
		return err
	}
	org, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		return err
	}
	if userID == org.OwnerID {
		return errors.InvalidState("the organization owner cannot be removed")
	}
	return s.orgs.RemoveMember(ctx, orgID, userID)
}

func (s *service) ListMembers(ctx context.Context, actorID common.UserID, orgID common.OrgID) ([]domainorg.Member, error) {
	if _, err := s.orgs.GetMember(ctx, orgID, actorID); err != nil {
		return nil, err
	}
	return s.orgs.ListMembers(ctx, orgID)
}

func (s *service) CreateReferral(ctx context.Context, fromUserID common.UserID, input *ReferralInput) (*domainorg.Referral, error) {
	if input == nil {
		return nil, errors.InvalidParam("referral input is required")
	}
	if input.ClientName == "" {
		return nil, errors.InvalidParam("referral client name is required")
	}
	if input.ToUserID == fromUserID {
		return nil, errors.InvalidParam("cannot refer a client to yourself")
	}
	if _, err := s.users.GetByID(ctx, input.ToUserID); err != nil {
		return nil, err
	}

	r := &domainorg.Referral{
		ID:          common.NewID(),
		FromUserID:  fromUserID,
		ToUserID:    input.ToUserID,
		ClientName:  input.ClientName,
		ClientEmail: input.ClientEmail,
		ClientPhone: input.ClientPhone,
		Notes:       input.Notes,
		FeePercent:  input.FeePercent,
	}
	if err := s.orgs.CreateReferral(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *service) ListReferrals(ctx context.Context, userID common.UserID) ([]domainorg.Referral, error) {
	return s.orgs.ListReferrals(ctx, userID)
}

func (s *service) requireManager(ctx context.Context, actorID common.UserID, orgID common.OrgID) error {
	m, err := s.orgs.GetMember(ctx, orgID, actorID)
	if err != nil {
		return err
	}
	if !m.CanManage() {
		return errors.Forbidden("organization membership changes require owner or admin role")
	}
	return nil
}
