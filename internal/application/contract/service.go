// Package contract is the application service for contract management:
// CRUD, counter-offer lineage, signing, milestone completion, and the
// deadline dashboard.
package contract

import (
	"context"
	"time"

	domaincontract "github.com/dealdeskhq/dealdesk/internal/domain/contract"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/database/redis"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/messaging/kafka"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/logging"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/metrics"
	"github.com/dealdeskhq/dealdesk/pkg/errors"
	"github.com/dealdeskhq/dealdesk/pkg/types/common"
)

const dashboardCacheTTL = 2 * time.Minute

// EventPublisher is the slice of the Kafka producer the service needs.
type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, payload interface{}) error
}

// ContractInput carries the writable fields of a contract. Used by both
// create and update so extraction drafts and manual edits share one shape.
type ContractInput struct {
	PropertyAddress  string              `json:"property_address"`
	BuyerName        string              `json:"buyer_name,omitempty"`
	BuyerEmail       string              `json:"buyer_email,omitempty"`
	BuyerPhone       string              `json:"buyer_phone,omitempty"`
	SellerName       string              `json:"seller_name,omitempty"`
	SellerEmail      string              `json:"seller_email,omitempty"`
	SellerPhone      string              `json:"seller_phone,omitempty"`
	RepresentingSide domaincontract.Side `json:"representing_side"`
	PurchasePrice    int64               `json:"purchase_price_cents,omitempty"`
	EarnestMoney     int64               `json:"earnest_money_cents,omitempty"`
	Notes            string              `json:"notes,omitempty"`
	Summary          string              `json:"summary,omitempty"`
	DocumentKey      string              `json:"document_key,omitempty"`

	ContractDate           common.Date `json:"contract_date,omitempty"`
	InspectionDate         common.Date `json:"inspection_date,omitempty"`
	InspectionResponseDate common.Date `json:"inspection_response_date,omitempty"`
	LoanContingencyDate    common.Date `json:"loan_contingency_date,omitempty"`
	AppraisalDate          common.Date `json:"appraisal_date,omitempty"`
	FinalWalkthroughDate   common.Date `json:"final_walkthrough_date,omitempty"`
	ClosingDate            common.Date `json:"closing_date,omitempty"`
}

// TransactionView is one transaction with its resolution applied.
type TransactionView struct {
	Root          *domaincontract.Contract     `json:"root"`
	CounterOffers []domaincontract.Contract    `json:"counter_offers"`
	Active        *domaincontract.ActiveRecord `json:"active,omitempty"`
	Issues        []domaincontract.Issue       `json:"issues,omitempty"`
}

// Dashboard is the agent's deadline overview.
type Dashboard struct {
	Today           common.Date            `json:"today"`
	Upcoming        []domaincontract.Event `json:"upcoming"`
	Overdue         []domaincontract.Event `json:"overdue"`
	ActiveContracts int                    `json:"active_contracts"`
	TotalContracts  int                    `json:"total_contracts"`
	Issues          []domaincontract.Issue `json:"issues,omitempty"`
}

// Service is the application-level contract API.
type Service interface {
	Create(ctx context.Context, ownerID common.UserID, input *ContractInput) (*domaincontract.Contract, error)
	CreateCounterOffer(ctx context.Context, ownerID common.UserID, parentID common.ID, input *ContractInput) (*domaincontract.Contract, error)
	Get(ctx context.Context, ownerID common.UserID, id common.ID) (*domaincontract.Contract, error)
	GetTransaction(ctx context.Context, ownerID common.UserID, rootID common.ID) (*TransactionView, error)
	List(ctx context.Context, ownerID common.UserID, filter domaincontract.ListFilter) ([]domaincontract.Contract, error)
	Update(ctx context.Context, ownerID common.UserID, id common.ID, input *ContractInput) (*domaincontract.Contract, error)
	Delete(ctx context.Context, ownerID common.UserID, id common.ID) error
	MarkSigned(ctx context.Context, ownerID common.UserID, id common.ID, signatureDate common.Date) (*domaincontract.Contract, error)
	CompleteMilestone(ctx context.Context, ownerID common.UserID, id common.ID, m domaincontract.Milestone, done bool) (*domaincontract.Contract, error)
	Cancel(ctx context.Context, ownerID common.UserID, id common.ID) (*domaincontract.Contract, error)
	GetDashboard(ctx context.Context, ownerID common.UserID) (*Dashboard, error)
	ActiveRecords(ctx context.Context, ownerID common.UserID) ([]domaincontract.ActiveRecord, []domaincontract.Issue, error)
}

type service struct {
	repo      domaincontract.Repository
	cache     redis.Cache
	publisher EventPublisher
	logger    logging.Logger
	metrics   *metrics.Metrics
}

// NewService wires the contract service. m may be nil in tests.
func NewService(repo domaincontract.Repository, cache redis.Cache, publisher EventPublisher, log logging.Logger, m *metrics.Metrics) Service {
	return &service{
		repo:      repo,
		cache:     cache,
		publisher: publisher,
		logger:    log,
		metrics:   m,
	}
}

// resolve runs the active-record resolution and records its instruments.
func (s *service) resolve(contracts []domaincontract.Contract) ([]domaincontract.ActiveRecord, []domaincontract.Issue) {
	start := time.Now()
	actives, issues := domaincontract.Resolve(contracts)
	if s.metrics != nil {
		s.metrics.ResolverRunsTotal.Inc()
		s.metrics.ResolverDuration.Observe(time.Since(start).Seconds())
		s.metrics.ActiveContractsGauge.Set(float64(len(actives)))
		for _, issue := range issues {
			s.metrics.ResolverIssuesTotal.WithLabelValues(string(issue.Code)).Inc()
		}
	}
	return actives, issues
}

func (s *service) Create(ctx context.Context, ownerID common.UserID, input *ContractInput) (*domaincontract.Contract, error) {
	if input == nil {
		return nil, errors.InvalidParam("contract input is required")
	}
	c := &domaincontract.Contract{
		ID:      common.NewID(),
		OwnerID: ownerID,
		Status:  domaincontract.StatusPending,
	}
	applyInput(c, input)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	s.invalidate(ctx, ownerID)
	s.publish(ctx, kafka.TopicContractCreated, c)
	return c, nil
}

// CreateCounterOffer amends the transaction rooted at parentID. The parent
// must be a root contract; counter-offers cannot be amended further.
func (s *service) CreateCounterOffer(ctx context.Context, ownerID common.UserID, parentID common.ID, input *ContractInput) (*domaincontract.Contract, error) {
	if input == nil {
		return nil, errors.InvalidParam("contract input is required")
	}
	parent, err := s.repo.GetByID(ctx, parentID, ownerID)
	if err != nil {
		return nil, err
	}
	if parent.IsCounterOffer {
		return nil, errors.New(errors.ErrCodeCounterOfferOnAmendment, "counter-offers must reference the root contract").
			WithDetail(string(parentID))
	}
	if parent.Status == domaincontract.StatusCancelled {
		return nil, errors.New(errors.ErrCodeContractCancelled, "cannot amend a cancelled transaction")
	}

	number, err := s.repo.NextCounterOfferNumber(ctx, parent.ID)
	if err != nil {
		return nil, err
	}

	c := &domaincontract.Contract{
		ID:                 common.NewID(),
		OwnerID:            ownerID,
		OrgID:              parent.OrgID,
		IsCounterOffer:     true,
		OriginalContractID: parent.ID,
		CounterOfferNumber: number,
		Status:             domaincontract.StatusPending,
	}
	applyInput(c, input)
	if c.PropertyAddress == "" {
		c.PropertyAddress = parent.PropertyAddress
	}
	if c.RepresentingSide == "" {
		c.RepresentingSide = parent.RepresentingSide
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	s.invalidate(ctx, ownerID)
	s.publish(ctx, kafka.TopicContractCreated, c)
	return c, nil
}

func (s *service) Get(ctx context.Context, ownerID common.UserID, id common.ID) (*domaincontract.Contract, error) {
	return s.repo.GetByID(ctx, id, ownerID)
}

func (s *service) GetTransaction(ctx context.Context, ownerID common.UserID, rootID common.ID) (*TransactionView, error) {
	records, err := s.repo.ListByTransaction(ctx, rootID, ownerID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.New(errors.ErrCodeContractNotFound, "transaction not found").WithDetail(string(rootID))
	}

	view := &TransactionView{}
	for i := range records {
		if records[i].IsCounterOffer {
			view.CounterOffers = append(view.CounterOffers, records[i])
		} else {
			root := records[i]
			view.Root = &root
		}
	}

	actives, issues := s.resolve(records)
	if len(actives) > 0 {
		view.Active = &actives[0]
	}
	view.Issues = issues
	return view, nil
}

func (s *service) List(ctx context.Context, ownerID common.UserID, filter domaincontract.ListFilter) ([]domaincontract.Contract, error) {
	return s.repo.ListByOwner(ctx, ownerID, filter)
}

func (s *service) Update(ctx context.Context, ownerID common.UserID, id common.ID, input *ContractInput) (*domaincontract.Contract, error) {
	if input == nil {
		return nil, errors.InvalidParam("contract input is required")
	}
	c, err := s.repo.GetByID(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if c.Status == domaincontract.StatusCancelled || c.Status == domaincontract.StatusSuperseded {
		return nil, errors.New(errors.ErrCodeContractStatusInvalid, "archived contracts cannot be edited").
			WithDetail(string(c.Status))
	}
	applyInput(c, input)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	s.invalidate(ctx, ownerID)
	s.publish(ctx, kafka.TopicContractUpdated, c)
	return c, nil
}

// Delete removes the record and, when id is a root, the whole transaction.
func (s *service) Delete(ctx context.Context, ownerID common.UserID, id common.ID) error {
	if err := s.repo.Delete(ctx, id, ownerID); err != nil {
		return err
	}
	s.invalidate(ctx, ownerID)
	return nil
}

// MarkSigned records full execution of a record. When a counter-offer
// becomes the transaction's active record, every other record in the
// transaction moves to superseded in the same call.
func (s *service) MarkSigned(ctx context.Context, ownerID common.UserID, id common.ID, signatureDate common.Date) (*domaincontract.Contract, error) {
	c, err := s.repo.GetByID(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if c.Status == domaincontract.StatusCancelled || c.Status == domaincontract.StatusSuperseded {
		return nil, errors.New(errors.ErrCodeContractStatusInvalid, "archived contracts cannot be signed").
			WithDetail(string(c.Status))
	}

	c.AllPartiesSigned = true
	if signatureDate.IsZero() {
		signatureDate = common.Today()
	}
	c.SignatureDate = signatureDate
	if c.Status == domaincontract.StatusPending {
		c.Status = domaincontract.StatusUnderContract
	}
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}

	if c.IsCounterOffer {
		records, err := s.repo.ListByTransaction(ctx, c.TransactionKey(), ownerID)
		if err != nil {
			return nil, err
		}
		actives, _ := s.resolve(records)
		if len(actives) > 0 && actives[0].Contract.ID == c.ID {
			if err := s.repo.MarkSupersededExcept(ctx, c.TransactionKey(), c.ID); err != nil {
				return nil, err
			}
			s.publish(ctx, kafka.TopicContractSuperseded, c)
		}
	}

	s.invalidate(ctx, ownerID)
	s.publish(ctx, kafka.TopicContractUpdated, c)
	return c, nil
}

func (s *service) CompleteMilestone(ctx context.Context, ownerID common.UserID, id common.ID, m domaincontract.Milestone, done bool) (*domaincontract.Contract, error) {
	c, err := s.repo.GetByID(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if err := c.CompleteMilestone(m, done); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	s.invalidate(ctx, ownerID)
	s.publish(ctx, kafka.TopicContractUpdated, c)
	return c, nil
}

func (s *service) Cancel(ctx context.Context, ownerID common.UserID, id common.ID) (*domaincontract.Contract, error) {
	c, err := s.repo.GetByID(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	c.Cancel()
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	s.invalidate(ctx, ownerID)
	s.publish(ctx, kafka.TopicContractUpdated, c)
	return c, nil
}

func (s *service) GetDashboard(ctx context.Context, ownerID common.UserID) (*Dashboard, error) {
	var dashboard Dashboard
	err := s.cache.GetOrSet(ctx, dashboardKey(ownerID), &dashboard, dashboardCacheTTL,
		func(ctx context.Context) (interface{}, error) {
			return s.buildDashboard(ctx, ownerID)
		})
	if err != nil {
		return nil, err
	}
	return &dashboard, nil
}

func (s *service) buildDashboard(ctx context.Context, ownerID common.UserID) (*Dashboard, error) {
	contracts, err := s.repo.ListByOwner(ctx, ownerID, domaincontract.ListFilter{IncludeArchived: true})
	if err != nil {
		return nil, err
	}

	actives, issues := s.resolve(contracts)
	events := domaincontract.ProjectAll(actives)
	today := common.Today()

	return &Dashboard{
		Today:           today,
		Upcoming:        domaincontract.Upcoming(events, today, domaincontract.DefaultUpcomingLimit),
		Overdue:         domaincontract.OverdueEvents(events, today),
		ActiveContracts: len(actives),
		TotalContracts:  len(contracts),
		Issues:          issues,
	}, nil
}

func (s *service) ActiveRecords(ctx context.Context, ownerID common.UserID) ([]domaincontract.ActiveRecord, []domaincontract.Issue, error) {
	contracts, err := s.repo.ListByOwner(ctx, ownerID, domaincontract.ListFilter{IncludeArchived: true})
	if err != nil {
		return nil, nil, err
	}
	actives, issues := s.resolve(contracts)
	return actives, issues, nil
}

// invalidate is the single place cached views are dropped after a write.
func (s *service) invalidate(ctx context.Context, ownerID common.UserID) {
	if _, err := s.cache.DeleteByPrefix(ctx, dashboardKey(ownerID)); err != nil {
		s.logger.Warn("cache invalidation failed",
			logging.String("owner_id", string(ownerID)),
			logging.Err(err),
		)
	}
}

func (s *service) publish(ctx context.Context, topic string, c *domaincontract.Contract) {
	payload := kafka.ContractEventPayload{
		ContractID:         c.ID,
		OwnerID:            c.OwnerID,
		TransactionID:      c.TransactionKey(),
		IsCounterOffer:     c.IsCounterOffer,
		CounterOfferNumber: c.CounterOfferNumber,
		Status:             string(c.Status),
	}
	if err := s.publisher.Publish(ctx, topic, string(c.TransactionKey()), payload); err != nil {
		s.logger.Warn("event publish failed",
			logging.String("topic", topic),
			logging.String("contract_id", string(c.ID)),
			logging.Err(err),
		)
	}
}

func dashboardKey(ownerID common.UserID) string {
	return "dashboard:" + string(ownerID)
}

func applyInput(c *domaincontract.Contract, in *ContractInput) {
	c.PropertyAddress = in.PropertyAddress
	c.BuyerName = in.BuyerName
	c.BuyerEmail = in.BuyerEmail
	c.BuyerPhone = in.BuyerPhone
	c.SellerName = in.SellerName
	c.SellerEmail = in.SellerEmail
	c.SellerPhone = in.SellerPhone
	c.RepresentingSide = in.RepresentingSide
	c.PurchasePrice = in.PurchasePrice
	c.EarnestMoney = in.EarnestMoney
	c.Notes = in.Notes
	c.Summary = in.Summary
	c.DocumentKey = in.DocumentKey
	c.ContractDate = in.ContractDate
	c.InspectionDate = in.InspectionDate
	c.InspectionResponseDate = in.InspectionResponseDate
	c.LoanContingencyDate = in.LoanContingencyDate
	c.AppraisalDate = in.AppraisalDate
	c.FinalWalkthroughDate = in.FinalWalkthroughDate
	c.ClosingDate = in.ClosingDate
}
