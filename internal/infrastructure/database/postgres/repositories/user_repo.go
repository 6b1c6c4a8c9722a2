package repositories

import (
	"context"

	"github.com/dealdeskhq/dealdesk/internal/domain/user"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/database/postgres"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/logging"
	"github.com/dealdeskhq/dealdesk/pkg/errors"
	"github.com/dealdeskhq/dealdesk/pkg/types/common"
)

const userColumns = `id, subject, email, name, phone, brokerage, plan, timezone, created_at, updated_at`

type postgresUserRepo struct {
	conn     *postgres.Connection
	log      logging.Logger
	executor queryExecutor
}

// NewPostgresUserRepo returns the pgx-backed user repository.
func NewPostgresUserRepo(conn *postgres.Connection, log logging.Logger) user.Repository {
	return &postgresUserRepo{conn: conn, log: log, executor: conn.Pool()}
}

func (r *postgresUserRepo) Create(ctx context.Context, u *user.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO users (id, subject, email, name, phone, brokerage, plan, timezone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err := r.executor.QueryRow(ctx, query,
		u.ID, u.Subject, u.Email, u.Name, u.Phone, u.Brokerage, u.Plan, u.Timezone,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return errors.Wrap(err, errors.ErrCodeConflict, "user already exists")
		}
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create user")
	}
	return nil
}

func (r *postgresUserRepo) Update(ctx context.Context, u *user.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	query := `
		UPDATE users SET
			email = $2, name = $3, phone = $4, brokerage = $5, plan = $6, timezone = $7,
			updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.executor.Exec(ctx, query,
		u.ID, u.Email, u.Name, u.Phone, u.Brokerage, u.Plan, u.Timezone)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to update user")
	}
	if tag.RowsAffected() == 0 {
		return errors.New(errors.ErrCodeUserNotFound, "user not found").WithDetail(string(u.ID))
	}
	return nil
}

func (r *postgresUserRepo) GetByID(ctx context.Context, id common.UserID) (*user.User, error) {
	row := r.executor.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (r *postgresUserRepo) GetBySubject(ctx context.Context, subject string) (*user.User, error) {
	row := r.executor.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE subject = $1`, subject)
	return scanUser(row)
}

func (r *postgresUserRepo) ListWithReminderContracts(ctx context.Context) ([]user.User, error) {
	query := `
		SELECT DISTINCT u.id, u.subject, u.email, u.name, u.phone, u.brokerage, u.plan, u.timezone,
			u.created_at, u.updated_at
		FROM users u
		JOIN contracts c ON c.owner_id = u.id
		WHERE c.status NOT IN ('cancelled', 'superseded')
		ORDER BY u.id
	`
	rows, err := r.executor.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list users for reminders")
	}
	defer rows.Close()

	var out []user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to read user rows")
	}
	return out, nil
}

func scanUser(row scanner) (*user.User, error) {
	var u user.User
	err := row.Scan(
		&u.ID, &u.Subject, &u.Email, &u.Name, &u.Phone, &u.Brokerage, &u.Plan, &u.Timezone,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, errors.New(errors.ErrCodeUserNotFound, "user not found")
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan user")
	}
	return &u, nil
}
