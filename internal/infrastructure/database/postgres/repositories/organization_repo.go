package repositories

import (
	"context"

	"github.com/dealdeskhq/dealdesk/internal/domain/organization"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/database/postgres"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/logging"
	"github.com/dealdeskhq/dealdesk/pkg/errors"
	"github.com/dealdeskhq/dealdesk/pkg/types/common"
)

type postgresOrgRepo struct {
	conn     *postgres.Connection
	log      logging.Logger
	executor queryExecutor
}

// NewPostgresOrganizationRepo returns the pgx-backed organization repository.
func NewPostgresOrganizationRepo(conn *postgres.Connection, log logging.Logger) organization.Repository {
	return &postgresOrgRepo{conn: conn, log: log, executor: conn.Pool()}
}

func (r *postgresOrgRepo) Create(ctx context.Context, org *organization.Organization) error {
	if err := org.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO organizations (id, name, owner_id)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at
	`
	err := r.executor.QueryRow(ctx, query, org.ID, org.Name, org.OwnerID).
		Scan(&org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create organization")
	}
	return nil
}

func (r *postgresOrgRepo) GetByID(ctx context.Context, id common.OrgID) (*organization.Organization, error) {
	var org organization.Organization
	err := r.executor.QueryRow(ctx,
		`SELECT id, name, owner_id, created_at, updated_at FROM organizations WHERE id = $1`, id).
		Scan(&org.ID, &org.Name, &org.OwnerID, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, errors.New(errors.ErrCodeOrgNotFound, "organization not found")
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to get organization")
	}
	return &org, nil
}

func (r *postgresOrgRepo) AddMember(ctx context.Context, m *organization.Member) error {
	query := `
		INSERT INTO organization_members (org_id, user_id, role)
		VALUES ($1, $2, $3)
		RETURNING joined_at
	`
	err := r.executor.QueryRow(ctx, query, m.OrgID, m.UserID, m.Role).Scan(&m.JoinedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return errors.Wrap(err, errors.ErrCodeMemberAlreadyExists, "user is already a member")
		}
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to add member")
	}
	return nil
}

func (r *postgresOrgRepo) RemoveMember(ctx context.Context, orgID common.OrgID, userID common.UserID) error {
	tag, err := r.executor.Exec(ctx,
		`DELETE FROM organization_members WHERE org_id = $1 AND user_id = $2`, orgID, userID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to remove member")
	}
	if tag.RowsAffected() == 0 {
		return errors.New(errors.ErrCodeNotOrgMember, "not a member of the organization")
	}
	return nil
}

func (r *postgresOrgRepo) GetMember(ctx context.Context, orgID common.OrgID, userID common.UserID) (*organization.Member, error) {
	var m organization.Member
	err := r.executor.QueryRow(ctx,
		`SELECT org_id, user_id, role, joined_at FROM organization_members WHERE org_id = $1 AND user_id = $2`,
		orgID, userID).
		Scan(&m.OrgID, &m.UserID, &m.Role, &m.JoinedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, errors.New(errors.ErrCodeNotOrgMember, "not a member of the organization")
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to get member")
	}
	return &m, nil
}

func (r *postgresOrgRepo) ListMembers(ctx context.Context, orgID common.OrgID) ([]organization.Member, error) {
	rows, err := r.executor.Query(ctx,
		`SELECT org_id, user_id, role, joined_at FROM organization_members WHERE org_id = $1 ORDER BY joined_at`,
		orgID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list members")
	}
	defer rows.Close()

	var out []organization.Member
	for rows.Next() {
		var m organization.Member
		if err := rows.Scan(&m.OrgID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan member")
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to read member rows")
	}
	return out, nil
}

func (r *postgresOrgRepo) CreateReferral(ctx context.Context, ref *organization.Referral) error {
	if ref.ID.IsZero() {
		ref.ID = common.NewID()
	}
	query := `
		INSERT INTO referrals (id, from_user_id, to_user_id, client_name, client_email, client_phone, notes, fee_percent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	err := r.executor.QueryRow(ctx, query,
		ref.ID, ref.FromUserID, ref.ToUserID, ref.ClientName, ref.ClientEmail,
		ref.ClientPhone, ref.Notes, ref.FeePercent,
	).Scan(&ref.CreatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create referral")
	}
	return nil
}

func (r *postgresOrgRepo) ListReferrals(ctx context.Context, userID common.UserID) ([]organization.Referral, error) {
	query := `
		SELECT id, from_user_id, to_user_id, client_name, client_email, client_phone, notes, fee_percent, created_at
		FROM referrals
		WHERE from_user_id = $1 OR to_user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.executor.Query(ctx, query, userID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list referrals")
	}
	defer rows.Close()

	var out []organization.Referral
	for rows.Next() {
		var ref organization.Referral
		if err := rows.Scan(&ref.ID, &ref.FromUserID, &ref.ToUserID, &ref.ClientName,
			&ref.ClientEmail, &ref.ClientPhone, &ref.Notes, &ref.FeePercent, &ref.CreatedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan referral")
		}
		out = append(out, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to read referral rows")
	}
	return out, nil
}
