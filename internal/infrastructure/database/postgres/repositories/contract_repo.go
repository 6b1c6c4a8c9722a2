package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dealdeskhq/dealdesk/internal/domain/contract"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/database/postgres"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/logging"
	"github.com/dealdeskhq/dealdesk/pkg/errors"
	"github.com/dealdeskhq/dealdesk/pkg/types/common"
)

const contractColumns = `
	id, owner_id, org_id, is_counter_offer, original_contract_id, counter_offer_number,
	all_parties_signed, signature_date, status,
	contract_date, inspection_date, inspection_response_date, loan_contingency_date,
	appraisal_date, final_walkthrough_date, closing_date,
	inspection_completed, inspection_response_completed, loan_contingency_completed,
	appraisal_completed, final_walkthrough_completed, closing_completed,
	property_address, buyer_name, buyer_email, buyer_phone,
	seller_name, seller_email, seller_phone, representing_side,
	purchase_price_cents, earnest_money_cents, notes, summary, document_key,
	created_at, updated_at`

type postgresContractRepo struct {
	conn     *postgres.Connection
	log      logging.Logger
	executor queryExecutor
}

// NewPostgresContractRepo returns the pgx-backed contract repository.
func NewPostgresContractRepo(conn *postgres.Connection, log logging.Logger) contract.Repository {
	return &postgresContractRepo{
		conn:     conn,
		log:      log,
		executor: conn.Pool(),
	}
}

func (r *postgresContractRepo) Create(ctx context.Context, c *contract.Contract) error {
	if c.ID.IsZero() {
		c.ID = common.NewID()
	}
	if err := c.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO contracts (` + strings.TrimSpace(contractColumns) + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30,
			$31, $32, $33, $34, $35, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err := r.executor.QueryRow(ctx, query,
		c.ID, c.OwnerID, nullString(string(c.OrgID)), c.IsCounterOffer,
		nullString(string(c.OriginalContractID)), nullInt(c.CounterOfferNumber),
		c.AllPartiesSigned, c.SignatureDate, c.Status,
		c.ContractDate, c.InspectionDate, c.InspectionResponseDate, c.LoanContingencyDate,
		c.AppraisalDate, c.FinalWalkthroughDate, c.ClosingDate,
		c.InspectionCompleted, c.InspectionResponseCompleted, c.LoanContingencyCompleted,
		c.AppraisalCompleted, c.FinalWalkthroughCompleted, c.ClosingCompleted,
		c.PropertyAddress, c.BuyerName, c.BuyerEmail, c.BuyerPhone,
		c.SellerName, c.SellerEmail, c.SellerPhone, string(c.RepresentingSide),
		c.PurchasePrice, c.EarnestMoney, c.Notes, c.Summary, c.DocumentKey,
	).Scan(&c.CreatedAt, &c.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err, "contracts_signed_offer_number_key") {
			return errors.Wrap(err, errors.ErrCodeDuplicateOfferNumber,
				fmt.Sprintf("counter-offer number %d already taken in transaction", c.CounterOfferNumber))
		}
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create contract")
	}
	return nil
}

func (r *postgresContractRepo) Update(ctx context.Context, c *contract.Contract) error {
	if err := c.Validate(); err != nil {
		return err
	}

	query := `
		UPDATE contracts SET
			all_parties_signed = $3, signature_date = $4, status = $5,
			contract_date = $6, inspection_date = $7, inspection_response_date = $8,
			loan_contingency_date = $9, appraisal_date = $10, final_walkthrough_date = $11,
			closing_date = $12,
			inspection_completed = $13, inspection_response_completed = $14,
			loan_contingency_completed = $15, appraisal_completed = $16,
			final_walkthrough_completed = $17, closing_completed = $18,
			property_address = $19, buyer_name = $20, buyer_email = $21, buyer_phone = $22,
			seller_name = $23, seller_email = $24, seller_phone = $25, representing_side = $26,
			purchase_price_cents = $27, earnest_money_cents = $28, notes = $29, summary = $30,
			document_key = $31, updated_at = NOW()
		WHERE id = $1 AND owner_id = $2
	`
	tag, err := r.executor.Exec(ctx, query,
		c.ID, c.OwnerID,
		c.AllPartiesSigned, c.SignatureDate, c.Status,
		c.ContractDate, c.InspectionDate, c.InspectionResponseDate,
		c.LoanContingencyDate, c.AppraisalDate, c.FinalWalkthroughDate,
		c.ClosingDate,
		c.InspectionCompleted, c.InspectionResponseCompleted,
		c.LoanContingencyCompleted, c.AppraisalCompleted,
		c.FinalWalkthroughCompleted, c.ClosingCompleted,
		c.PropertyAddress, c.BuyerName, c.BuyerEmail, c.BuyerPhone,
		c.SellerName, c.SellerEmail, c.SellerPhone, string(c.RepresentingSide),
		c.PurchasePrice, c.EarnestMoney, c.Notes, c.Summary,
		c.DocumentKey,
	)
	if err != nil {
		if isUniqueViolation(err, "contracts_signed_offer_number_key") {
			return errors.Wrap(err, errors.ErrCodeDuplicateOfferNumber,
				fmt.Sprintf("counter-offer number %d already taken in transaction", c.CounterOfferNumber))
		}
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to update contract")
	}
	if tag.RowsAffected() == 0 {
		return errors.New(errors.ErrCodeContractNotFound, "contract not found").WithDetail(c.ID.String())
	}
	return nil
}

func (r *postgresContractRepo) Delete(ctx context.Context, id common.ID, ownerID common.UserID) error {
	tag, err := r.executor.Exec(ctx,
		`DELETE FROM contracts WHERE (id = $1 OR original_contract_id = $1) AND owner_id = $2`,
		id, ownerID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to delete contract")
	}
	if tag.RowsAffected() == 0 {
		return errors.New(errors.ErrCodeContractNotFound, "contract not found").WithDetail(id.String())
	}
	return nil
}

func (r *postgresContractRepo) GetByID(ctx context.Context, id common.ID, ownerID common.UserID) (*contract.Contract, error) {
	query := `SELECT ` + strings.TrimSpace(contractColumns) + ` FROM contracts WHERE id = $1 AND owner_id = $2`
	row := r.executor.QueryRow(ctx, query, id, ownerID)
	return scanContract(row)
}

func (r *postgresContractRepo) ListByOwner(ctx context.Context, ownerID common.UserID, filter contract.ListFilter) ([]contract.Contract, error) {
	where := "WHERE owner_id = $1"
	args := []any{ownerID}

	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		where += fmt.Sprintf(" AND status = ANY($%d)", len(args)+1)
		args = append(args, statuses)
	} else if !filter.IncludeArchived {
		where += " AND status NOT IN ('cancelled', 'superseded')"
	}

	query := `SELECT ` + strings.TrimSpace(contractColumns) + ` FROM contracts ` + where + ` ORDER BY created_at DESC`
	if filter.Pagination.PageSize > 0 {
		p := filter.Pagination
		p.Normalize()
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		args = append(args, p.PageSize, p.Offset())
	}

	rows, err := r.executor.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list contracts")
	}
	defer rows.Close()
	return collectContracts(rows)
}

func (r *postgresContractRepo) ListByTransaction(ctx context.Context, rootID common.ID, ownerID common.UserID) ([]contract.Contract, error) {
	query := `SELECT ` + strings.TrimSpace(contractColumns) + ` FROM contracts
		WHERE (id = $1 OR original_contract_id = $1) AND owner_id = $2
		ORDER BY is_counter_offer, counter_offer_number`
	rows, err := r.executor.Query(ctx, query, rootID, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list transaction contracts")
	}
	defer rows.Close()
	return collectContracts(rows)
}

func (r *postgresContractRepo) NextCounterOfferNumber(ctx context.Context, rootID common.ID) (int, error) {
	var next int
	err := r.executor.QueryRow(ctx,
		`SELECT COALESCE(MAX(counter_offer_number), 0) + 1 FROM contracts WHERE original_contract_id = $1`,
		rootID).Scan(&next)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to compute next counter-offer number")
	}
	return next, nil
}

func (r *postgresContractRepo) MarkSupersededExcept(ctx context.Context, rootID common.ID, winnerID common.ID) error {
	_, err := r.executor.Exec(ctx, `
		UPDATE contracts SET status = 'superseded', updated_at = NOW()
		WHERE (id = $1 OR original_contract_id = $1)
		  AND id <> $2
		  AND status NOT IN ('cancelled', 'superseded')
	`, rootID, winnerID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to supersede transaction contracts")
	}
	return nil
}

func collectContracts(rows scannerRows) ([]contract.Contract, error) {
	var out []contract.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to read contract rows")
	}
	return out, nil
}

func scanContract(row scanner) (*contract.Contract, error) {
	var c contract.Contract
	var orgID, originalID sql.NullString
	var offerNumber sql.NullInt32
	var side string

	err := row.Scan(
		&c.ID, &c.OwnerID, &orgID, &c.IsCounterOffer, &originalID, &offerNumber,
		&c.AllPartiesSigned, &c.SignatureDate, &c.Status,
		&c.ContractDate, &c.InspectionDate, &c.InspectionResponseDate, &c.LoanContingencyDate,
		&c.AppraisalDate, &c.FinalWalkthroughDate, &c.ClosingDate,
		&c.InspectionCompleted, &c.InspectionResponseCompleted, &c.LoanContingencyCompleted,
		&c.AppraisalCompleted, &c.FinalWalkthroughCompleted, &c.ClosingCompleted,
		&c.PropertyAddress, &c.BuyerName, &c.BuyerEmail, &c.BuyerPhone,
		&c.SellerName, &c.SellerEmail, &c.SellerPhone, &side,
		&c.PurchasePrice, &c.EarnestMoney, &c.Notes, &c.Summary, &c.DocumentKey,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, errors.New(errors.ErrCodeContractNotFound, "contract not found")
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan contract")
	}

	if orgID.Valid {
		c.OrgID = common.OrgID(orgID.String)
	}
	if originalID.Valid {
		c.OriginalContractID = common.ID(originalID.String)
	}
	if offerNumber.Valid {
		c.CounterOfferNumber = int(offerNumber.Int32)
	}
	c.RepresentingSide = contract.Side(side)
	return &c, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}
