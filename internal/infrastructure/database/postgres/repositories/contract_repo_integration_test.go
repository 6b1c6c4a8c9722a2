//go:build integration

// Integration tests for the PostgreSQL repositories. They require Docker
// and are gated behind the "integration" build tag.
package repositories_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	domaincontract "github.com/dealdeskhq/dealdesk/internal/domain/contract"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/database/postgres"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/database/postgres/repositories"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/logging"
	"github.com/dealdeskhq/dealdesk/pkg/errors"
	"github.com/dealdeskhq/dealdesk/pkg/types/common"
)

// startPostgres launches a PostgreSQL 16 container and returns a connected
// pool with the schema applied.
func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "dealdesk_test",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/dealdesk_test?sslmode=disable", host, port.Port())
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	applySchema(t, pool)
	return pool
}

func applySchema(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	ddl := `
	CREATE TABLE users (
		id          TEXT PRIMARY KEY,
		subject     TEXT NOT NULL UNIQUE,
		email       TEXT NOT NULL UNIQUE,
		name        TEXT NOT NULL DEFAULT '',
		phone       TEXT NOT NULL DEFAULT '',
		brokerage   TEXT NOT NULL DEFAULT '',
		plan        TEXT NOT NULL DEFAULT 'trial',
		timezone    TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE organizations (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		owner_id    TEXT NOT NULL REFERENCES users(id),
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE contracts (
		id                   TEXT PRIMARY KEY,
		owner_id             TEXT NOT NULL REFERENCES users(id),
		org_id               TEXT REFERENCES organizations(id),
		is_counter_offer     BOOLEAN NOT NULL DEFAULT FALSE,
		original_contract_id TEXT REFERENCES contracts(id) ON DELETE CASCADE,
		counter_offer_number INTEGER,
		all_parties_signed   BOOLEAN NOT NULL DEFAULT FALSE,
		signature_date       DATE,
		status               TEXT NOT NULL DEFAULT 'pending',
		contract_date            DATE,
		inspection_date          DATE,
		inspection_response_date DATE,
		loan_contingency_date    DATE,
		appraisal_date           DATE,
		final_walkthrough_date   DATE,
		closing_date             DATE,
		inspection_completed          BOOLEAN NOT NULL DEFAULT FALSE,
		inspection_response_completed BOOLEAN NOT NULL DEFAULT FALSE,
		loan_contingency_completed    BOOLEAN NOT NULL DEFAULT FALSE,
		appraisal_completed           BOOLEAN NOT NULL DEFAULT FALSE,
		final_walkthrough_completed   BOOLEAN NOT NULL DEFAULT FALSE,
		closing_completed             BOOLEAN NOT NULL DEFAULT FALSE,
		property_address     TEXT NOT NULL DEFAULT '',
		buyer_name           TEXT NOT NULL DEFAULT '',
		buyer_email          TEXT NOT NULL DEFAULT '',
		buyer_phone          TEXT NOT NULL DEFAULT '',
		seller_name          TEXT NOT NULL DEFAULT '',
		seller_email         TEXT NOT NULL DEFAULT '',
		seller_phone         TEXT NOT NULL DEFAULT '',
		representing_side    TEXT NOT NULL DEFAULT 'buyer',
		purchase_price_cents BIGINT NOT NULL DEFAULT 0,
		earnest_money_cents  BIGINT NOT NULL DEFAULT 0,
		notes                TEXT NOT NULL DEFAULT '',
		summary              TEXT NOT NULL DEFAULT '',
		document_key         TEXT NOT NULL DEFAULT '',
		created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE UNIQUE INDEX contracts_signed_offer_number_key
		ON contracts (original_contract_id, counter_offer_number)
		WHERE is_counter_offer;

	CREATE TABLE reminder_settings (
		user_id     TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		offsets     JSONB NOT NULL DEFAULT '{}',
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`

	_, err := pool.Exec(ctx, ddl)
	require.NoError(t, err)

	_, err = pool.Exec(ctx,
		`INSERT INTO users (id, subject, email, name) VALUES ('agent-1', 'sub-1', 'agent@example.com', 'Dana Agent')`)
	require.NoError(t, err)
}

func newRepo(t *testing.T) domaincontract.Repository {
	t.Helper()
	pool := startPostgres(t)
	conn := postgres.NewConnectionWithPool(pool, logging.NewNopLogger())
	return repositories.NewPostgresContractRepo(conn, logging.NewNopLogger())
}

func rootContract(id string) *domaincontract.Contract {
	return &domaincontract.Contract{
		ID:              common.ID(id),
		OwnerID:         common.UserID("agent-1"),
		Status:          domaincontract.StatusPending,
		PropertyAddress: "12 Elm St",
		RepresentingSide: domaincontract.SideBuyer,
		ClosingDate:     common.Today().AddDays(30),
	}
}

func counterOffer(id, rootID string, number int) *domaincontract.Contract {
	c := rootContract(id)
	c.IsCounterOffer = true
	c.OriginalContractID = common.ID(rootID)
	c.CounterOfferNumber = number
	return c
}

func TestContractRoundTrip(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	want := rootContract("ctr-1")
	want.PurchasePrice = 45000000
	require.NoError(t, repo.Create(ctx, want))

	got, err := repo.GetByID(ctx, want.ID, want.OwnerID)
	require.NoError(t, err)
	assert.Equal(t, want.PropertyAddress, got.PropertyAddress)
	assert.Equal(t, want.PurchasePrice, got.PurchasePrice)
	assert.Equal(t, want.ClosingDate.String(), got.ClosingDate.String())
	assert.False(t, got.IsCounterOffer)

	got.InspectionCompleted = true
	got.Status = domaincontract.StatusUnderContract
	require.NoError(t, repo.Update(ctx, got))

	again, err := repo.GetByID(ctx, want.ID, want.OwnerID)
	require.NoError(t, err)
	assert.True(t, again.InspectionCompleted)
	assert.Equal(t, domaincontract.StatusUnderContract, again.Status)
}

func TestGetByIDWrongOwner(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, rootContract("ctr-1")))

	_, err := repo.GetByID(ctx, common.ID("ctr-1"), common.UserID("someone-else"))
	assert.True(t, errors.IsCode(err, errors.ErrCodeContractNotFound))
}

func TestCounterOfferLineage(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, rootContract("ctr-1")))

	n, err := repo.NextCounterOfferNumber(ctx, common.ID("ctr-1"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, repo.Create(ctx, counterOffer("co-1", "ctr-1", 1)))
	require.NoError(t, repo.Create(ctx, counterOffer("co-2", "ctr-1", 2)))

	n, err = repo.NextCounterOfferNumber(ctx, common.ID("ctr-1"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	tx, err := repo.ListByTransaction(ctx, common.ID("ctr-1"), common.UserID("agent-1"))
	require.NoError(t, err)
	assert.Len(t, tx, 3)
}

func TestDuplicateOfferNumberRejected(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, rootContract("ctr-1")))
	require.NoError(t, repo.Create(ctx, counterOffer("co-1", "ctr-1", 1)))

	err := repo.Create(ctx, counterOffer("co-dup", "ctr-1", 1))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeDuplicateOfferNumber))
}

func TestMarkSupersededExcept(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, rootContract("ctr-1")))
	require.NoError(t, repo.Create(ctx, counterOffer("co-1", "ctr-1", 1)))
	winner := counterOffer("co-2", "ctr-1", 2)
	winner.AllPartiesSigned = true
	require.NoError(t, repo.Create(ctx, winner))

	require.NoError(t, repo.MarkSupersededExcept(ctx, common.ID("ctr-1"), winner.ID))

	tx, err := repo.ListByTransaction(ctx, common.ID("ctr-1"), common.UserID("agent-1"))
	require.NoError(t, err)
	for _, c := range tx {
		if c.ID == winner.ID {
			assert.NotEqual(t, domaincontract.StatusSuperseded, c.Status)
			continue
		}
		assert.Equal(t, domaincontract.StatusSuperseded, c.Status, string(c.ID))
	}
}

func TestReminderSettingsRoundTrip(t *testing.T) {
	pool := startPostgres(t)
	conn := postgres.NewConnectionWithPool(pool, logging.NewNopLogger())
	repo := repositories.NewPostgresReminderSettingsRepo(conn, logging.NewNopLogger())
	ctx := context.Background()

	settings := &domaincontract.ReminderSettings{
		UserID: common.UserID("agent-1"),
		Offsets: map[domaincontract.Milestone][]int{
			domaincontract.MilestoneClosing: {1, 3, 7},
		},
	}
	require.NoError(t, repo.Put(ctx, settings))

	got, err := repo.Get(ctx, common.UserID("agent-1"))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 7}, got.Offsets[domaincontract.MilestoneClosing])
}
