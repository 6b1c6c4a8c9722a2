package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealdeskhq/dealdesk/internal/infrastructure/auth"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/logging"
	domainorg "github.com/dealdeskhq/dealdesk/internal/domain/organization"
	domainuser "github.com/dealdeskhq/dealdesk/internal/domain/user"
	"github.com/dealdeskhq/dealdesk/pkg/errors"
	"github.com/dealdeskhq/dealdesk/pkg/types/common"
)

type mockUserRepo struct {
	byID      map[common.UserID]*domainuser.User
	bySubject map[string]*domainuser.User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		byID:      make(map[common.UserID]*domainuser.User),
		bySubject: make(map[string]*domainuser.User),
	}
}

func (m *mockUserRepo) Create(ctx context.Context, u *domainuser.User) error {
	if _, ok := m.bySubject[u.Subject]; ok {
		return errors.Conflict("subject already registered")
	}
	copied := *u
	m.byID[u.ID] = &copied
	m.bySubject[u.Subject] = &copied
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, u *domainuser.User) error {
	copied := *u
	m.byID[u.ID] = &copied
	m.bySubject[u.Subject] = &copied
	return nil
}

func (m *mockUserRepo) GetByID(ctx context.Context, id common.UserID) (*domainuser.User, error) {
	if u, ok := m.byID[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, errors.New(errors.ErrCodeUserNotFound, "user not found")
}

func (m *mockUserRepo) GetBySubject(ctx context.Context, subject string) (*domainuser.User, error) {
	if u, ok := m.bySubject[subject]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, errors.New(errors.ErrCodeUserNotFound, "user not found")
}

func (m *mockUserRepo) ListWithReminderContracts(ctx context.Context) ([]domainuser.User, error) {
	return nil, nil
}

type memberKey struct {
	org  common.OrgID
	user common.UserID
}

type mockOrgRepo struct {
	orgs      map[common.OrgID]*domainorg.Organization
	members   map[memberKey]*domainorg.Member
	referrals []domainorg.Referral
}

func newMockOrgRepo() *mockOrgRepo {
	return &mockOrgRepo{
		orgs:    make(map[common.OrgID]*domainorg.Organization),
		members: make(map[memberKey]*domainorg.Member),
	}
}

func (m *mockOrgRepo) Create(ctx context.Context, org *domainorg.Organization) error {
	copied := *org
	m.orgs[org.ID] = &copied
	return nil
}

func (m *mockOrgRepo) GetByID(ctx context.Context, id common.OrgID) (*domainorg.Organization, error) {
	if o, ok := m.orgs[id]; ok {
		return o, nil
	}
	return nil, errors.New(errors.ErrCodeOrgNotFound, "organization not found")
}

func (m *mockOrgRepo) AddMember(ctx context.Context, mem *domainorg.Member) error {
	key := memberKey{mem.OrgID, mem.UserID}
	if _, ok := m.members[key]; ok {
		return errors.New(errors.ErrCodeMemberAlreadyExists, "member already exists")
	}
	copied := *mem
	m.members[key] = &copied
	return nil
}

func (m *mockOrgRepo) RemoveMember(ctx context.Context, orgID common.OrgID, userID common.UserID) error {
	key := memberKey{orgID, userID}
	if _, ok := m.members[key]; !ok {
		return errors.New(errors.ErrCodeNotOrgMember, "not a member")
	}
	delete(m.members, key)
	return nil
}

func (m *mockOrgRepo) GetMember(ctx context.Context, orgID common.OrgID, userID common.UserID) (*domainorg.Member, error) {
	if mem, ok := m.members[memberKey{orgID, userID}]; ok {
		return mem, nil
	}
	return nil, errors.New(errors.ErrCodeNotOrgMember, "not a member")
}

func (m *mockOrgRepo) ListMembers(ctx context.Context, orgID common.OrgID) ([]domainorg.Member, error) {
	var out []domainorg.Member
	for key, mem := range m.members {
		if key.org == orgID {
			out = append(out, *mem)
		}
	}
	return out, nil
}

func (m *mockOrgRepo) CreateReferral(ctx context.Context, r *domainorg.Referral) error {
	m.referrals = append(m.referrals, *r)
	return nil
}

func (m *mockOrgRepo) ListReferrals(ctx context.Context, userID common.UserID) ([]domainorg.Referral, error) {
	var out []domainorg.Referral
	for _, r := range m.referrals {
		if r.FromUserID == userID || r.ToUserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func newFixture() (*mockUserRepo, *mockOrgRepo, Service) {
	users := newMockUserRepo()
	orgs := newMockOrgRepo()
	return users, orgs, NewService(users, orgs, logging.NewNopLogger())
}

func seedUser(users *mockUserRepo, id common.UserID) *domainuser.User {
	u := &domainuser.User{
		ID: id, Subject: "sub-" + string(id),
		Email: string(id) + "@example.com", Plan: domainuser.PlanTrial,
	}
	users.byID[id] = u
	users.bySubject[u.Subject] = u
	return u
}

func TestEnsureUserProvisionsOnFirstSight(t *testing.T) {
	users, _, svc := newFixture()

	claims := &auth.Claims{Subject: "idp|abc", Email: "agent@example.com", Name: "Pat Agent"}
	created, err := svc.EnsureUser(context.Background(), claims)
	require.NoError(t, err)
	assert.Equal(t, "idp|abc", created.Subject)
	assert.Equal(t, domainuser.PlanTrial, created.Plan)
	assert.Contains(t, users.bySubject, "idp|abc")

	again, err := svc.EnsureUser(context.Background(), claims)
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)
}

func TestEnsureUserRejectsEmptyClaims(t *testing.T) {
	_, _, svc := newFixture()
	_, err := svc.EnsureUser(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnauthorized))
}

func TestUpdateProfile(t *testing.T) {
	users, _, svc := newFixture()
	seedUser(users, "agent-1")

	updated, err := svc.UpdateProfile(context.Background(), "agent-1", &ProfileInput{
		Name: "Pat Agent", Timezone: "America/Denver", Brokerage: "Summit Realty",
	})
	require.NoError(t, err)
	assert.Equal(t, "America/Denver", updated.Timezone)
	assert.Equal(t, "Summit Realty", users.byID["agent-1"].Brokerage)
}

func TestCreateOrganizationAddsOwnerMember(t *testing.T) {
	users, orgs, svc := newFixture()
	seedUser(users, "agent-1")

	org, err := svc.CreateOrganization(context.Background(), "agent-1", "Summit Realty")
	require.NoError(t, err)

	member, err := orgs.GetMember(context.Background(), org.ID, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, domainorg.RoleOwner, member.Role)
}

func TestAddMemberRequiresManager(t *testing.T) {
	users, orgs, svc := newFixture()
	seedUser(users, "agent-1")
	seedUser(users, "agent-2")
	seedUser(users, "agent-3")
	org, err := svc.CreateOrganization(context.Background(), "agent-1", "Summit Realty")
	require.NoError(t, err)
	require.NoError(t, svc.AddMember(context.Background(), "agent-1", org.ID, "agent-2", domainorg.RoleMember))

	// Plain members cannot add.
	err = svc.AddMember(context.Background(), "agent-2", org.ID, "agent-3", domainorg.RoleMember)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeForbidden))

	members, err := orgs.ListMembers(context.Background(), org.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestRemoveOwnerRejected(t *testing.T) {
	users, _, svc := newFixture()
	seedUser(users, "agent-1")
	org, err := svc.CreateOrganization(context.Background(), "agent-1", "Summit Realty")
	require.NoError(t, err)

	err = svc.RemoveMember(context.Background(), "agent-1", org.ID, "agent-1")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConflict))
}

func TestCreateReferral(t *testing.T) {
	users, _, svc := newFixture()
	seedUser(users, "agent-1")
	seedUser(users, "agent-2")

	r, err := svc.CreateReferral(context.Background(), "agent-1", &ReferralInput{
		ToUserID: "agent-2", ClientName: "Jordan Lead", FeePercent: 25,
	})
	require.NoError(t, err)
	assert.False(t, r.ID.IsZero())

	mine, err := svc.ListReferrals(context.Background(), "agent-2")
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestCreateReferralToSelfRejected(t *testing.T) {
	users, _, svc := newFixture()
	seedUser(users, "agent-1")

	_, err := svc.CreateReferral(context.Background(), "agent-1", &ReferralInput{
		ToUserID: "agent-1", ClientName: "Jordan Lead",
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest))
}
