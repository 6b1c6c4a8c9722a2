package repositories

import (
	"context"
	"encoding/json"

	"github.com/dealdeskhq/dealdesk/internal/domain/contract"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/database/postgres"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/logging"
	"github.com/dealdeskhq/dealdesk/pkg/errors"
	"github.com/dealdeskhq/dealdesk/pkg/types/common"
)

type postgresReminderSettingsRepo struct {
	conn     *postgres.Connection
	log      logging.Logger
	executor queryExecutor
}

// NewPostgresReminderSettingsRepo returns the pgx-backed reminder settings
// repository. Offsets are stored as a JSONB map keyed by milestone.
func NewPostgresReminderSettingsRepo(conn *postgres.Connection, log logging.Logger) contract.ReminderSettingsRepository {
	return &postgresReminderSettingsRepo{conn: conn, log: log, executor: conn.Pool()}
}

// Get returns the user's settings, or defaults-only settings when the user
// has never customized anything.
func (r *postgresReminderSettingsRepo) Get(ctx context.Context, userID common.UserID) (*contract.ReminderSettings, error) {
	var raw []byte
	err := r.executor.QueryRow(ctx,
		`SELECT offsets FROM reminder_settings WHERE user_id = $1`, userID).Scan(&raw)
	if err != nil {
		if isNoRows(err) {
			return &contract.ReminderSettings{UserID: userID}, nil
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to get reminder settings")
	}

	settings := contract.ReminderSettings{UserID: userID}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &settings.Offsets); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "corrupt reminder settings")
		}
	}
	return &settings, nil
}

func (r *postgresReminderSettingsRepo) Put(ctx context.Context, settings *contract.ReminderSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(settings.Offsets)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode reminder settings")
	}

	_, err = r.executor.Exec(ctx, `
		INSERT INTO reminder_settings (user_id, offsets, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET offsets = EXCLUDED.offsets, updated_at = NOW()
	`, settings.UserID, raw)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to save reminder settings")
	}
	return nil
}
