package contract

import (
	"context"

	"github.com/dealdeskhq/dealdesk/pkg/types/common"
)

// ListFilter narrows ListByOwner. Zero values mean no filtering.
type ListFilter struct {
	Statuses       []Status
	IncludeArchived bool
	Pagination     common.Pagination
}

// Repository is the persistence port for contracts. Implementations live in
// internal/infrastructure/database/postgres/repositories.
type Repository interface {
	Create(ctx context.Context, c *Contract) error
	Update(ctx context.Context, c *Contract) error
	Delete(ctx context.Context, id common.ID, ownerID common.UserID) error

	GetByID(ctx context.Context, id common.ID, ownerID common.UserID) (*Contract, error)
	ListByOwner(ctx context.Context, ownerID common.UserID, filter ListFilter) ([]Contract, error)

	// ListByTransaction returns the root and every counter-offer for the
	// transaction keyed by rootID, regardless of status.
	ListByTransaction(ctx context.Context, rootID common.ID, ownerID common.UserID) ([]Contract, error)

	// NextCounterOfferNumber returns max(counter_offer_number)+1 for the
	// transaction, starting at 1. Assignment races are backstopped by the
	// unique index on (original_contract_id, counter_offer_number).
	NextCounterOfferNumber(ctx context.Context, rootID common.ID) (int, error)

	// MarkSupersededExcept moves the root and every counter-offer of the
	// transaction except winnerID to StatusSuperseded, in one statement.
	MarkSupersededExcept(ctx context.Context, rootID common.ID, winnerID common.ID) error
}

// ReminderSettingsRepository persists per-user reminder offsets.
type ReminderSettingsRepository interface {
	Get(ctx context.Context, userID common.UserID) (*ReminderSettings, error)
	Put(ctx context.Context, settings *ReminderSettings) error
}
