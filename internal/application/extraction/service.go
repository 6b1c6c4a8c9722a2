// Package extraction turns an uploaded contract document into a reviewed
// draft: store the file, run the extraction model against it, and map the
// result onto contract fields for the agent to confirm.
package extraction

import (
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	appcontract "github.com/dealdeskhq/dealdesk/internal/application/contract"
	infraextraction "github.com/dealdeskhq/dealdesk/internal/infrastructure/extraction"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/logging"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/metrics"
	"github.com/dealdeskhq/dealdesk/pkg/errors"
	"github.com/dealdeskhq/dealdesk/pkg/types/common"
)

// DocumentStore is the slice of the object store this service needs.
type DocumentStore interface {
	Upload(ctx context.Context, ownerID common.UserID, filename, contentType string, r io.Reader, size int64) (string, error)
	PresignedURL(ctx context.Context, key string) (string, error)
	OwnedBy(key string, ownerID common.UserID) bool
}

// Extractor is the slice of the extraction client this service needs.
type Extractor interface {
	Extract(ctx context.Context, documentURL string) (*infraextraction.Result, error)
	Verify(ctx context.Context, documentURL string, candidate *infraextraction.Result) (*infraextraction.Result, error)
}

// Draft is the reviewed output of an extraction run: pre-filled contract
// fields plus the list of fields the model could not read with confidence.
// Nothing is persisted until the agent confirms the draft.
type Draft struct {
	DocumentKey        string                    `json:"document_key"`
	Input              appcontract.ContractInput `json:"input"`
	IsCounterOffer     bool                      `json:"is_counter_offer"`
	CounterOfferNumber int                       `json:"counter_offer_number,omitempty"`
	UncertainFields    []string                  `json:"uncertain_fields,omitempty"`
	Warnings           []string                  `json:"warnings,omitempty"`
}

// Service runs uploads end to end.
type Service interface {
	// UploadAndExtract stores the document and returns a draft built from
	// the extraction result.
	UploadAndExtract(ctx context.Context, ownerID common.UserID, filename, contentType string, r io.Reader, size int64) (*Draft, error)

	// ExtractFromDocument re-runs extraction against an already stored
	// document. The key must belong to ownerID.
	ExtractFromDocument(ctx context.Context, ownerID common.UserID, documentKey string) (*Draft, error)
}

type service struct {
	store     DocumentStore
	extractor Extractor
	logger    logging.Logger
	metrics   *metrics.Metrics
}

// NewService wires the extraction service. m may be nil in tests.
func NewService(store DocumentStore, extractor Extractor, log logging.Logger, m *metrics.Metrics) Service {
	return &service{store: store, extractor: extractor, logger: log, metrics: m}
}

func (s *service) UploadAndExtract(ctx context.Context, ownerID common.UserID, filename, contentType string, r io.Reader, size int64) (*Draft, error) {
	key, err := s.store.Upload(ctx, ownerID, filename, contentType, r, size)
	if err != nil {
		return nil, err
	}
	s.logger.Info("document stored",
		logging.String("owner_id", string(ownerID)),
		logging.String("document_key", key),
	)
	return s.ExtractFromDocument(ctx, ownerID, key)
}

func (s *service) ExtractFromDocument(ctx context.Context, ownerID common.UserID, documentKey string) (*Draft, error) {
	// Foreign keys read as absent rather than forbidden: the response must
	// not reveal whether another user's document exists.
	if !s.store.OwnedBy(documentKey, ownerID) {
		return nil, errors.New(errors.ErrCodeDocumentNotFound, "document not found").WithDetail(documentKey)
	}

	start := time.Now()
	draft, err := s.runExtraction(ctx, documentKey)
	if s.metrics != nil {
		status := "done"
		if err != nil {
			status = "failed"
		}
		s.metrics.ExtractionTasksTotal.WithLabelValues(status).Inc()
		s.metrics.ExtractionTaskDuration.Observe(time.Since(start).Seconds())
	}
	return draft, err
}

func (s *service) runExtraction(ctx context.Context, documentKey string) (*Draft, error) {
	url, err := s.store.PresignedURL(ctx, documentKey)
	if err != nil {
		return nil, err
	}
	result, err := s.extractor.Extract(ctx, url)
	if err != nil {
		return nil, err
	}

	// Second pass: re-read the document with the first pass as candidate
	// values. Fields the passes disagree on are cleared and flagged so the
	// agent reviews them instead of trusting a single bad read.
	verified, err := s.extractor.Verify(ctx, url, result)
	if err != nil {
		s.logger.Warn("verification pass failed, draft built from single extraction",
			logging.String("document_key", documentKey),
			logging.Err(err),
		)
		draft := buildDraft(documentKey, result)
		draft.Warnings = append(draft.Warnings, "verification unavailable; review every field manually")
		return draft, nil
	}
	reconciled := infraextraction.Reconcile(*result, *verified)
	return buildDraft(documentKey, &reconciled), nil
}

// buildDraft verifies the extraction result field by field. Values the model
// flagged as uncertain, and values that fail to parse, are left zero and
// reported so the agent reviews them instead of trusting a bad read.
func buildDraft(documentKey string, result *infraextraction.Result) *Draft {
	draft := &Draft{
		DocumentKey:     documentKey,
		UncertainFields: result.UncertainFields(),
	}

	in := &draft.Input
	in.DocumentKey = documentKey
	in.PropertyAddress = certain(result.PropertyAddress)
	in.BuyerName = certain(result.BuyerName)
	in.SellerName = certain(result.SellerName)
	in.Summary = certain(result.Summary)

	in.PurchasePrice = draft.parseCents("purchase_price", result.PurchasePrice)
	in.EarnestMoney = draft.parseCents("earnest_money", result.EarnestMoney)

	in.ContractDate = draft.parseDate("contract_date", result.ContractDate)
	in.InspectionDate = draft.parseDate("inspection_date", result.InspectionDate)
	in.InspectionResponseDate = draft.parseDate("inspection_response_date", result.InspectionResponseDate)
	in.LoanContingencyDate = draft.parseDate("loan_contingency_date", result.LoanContingencyDate)
	in.AppraisalDate = draft.parseDate("appraisal_date", result.AppraisalDate)
	in.FinalWalkthroughDate = draft.parseDate("final_walkthrough_date", result.FinalWalkthroughDate)
	in.ClosingDate = draft.parseDate("closing_date", result.ClosingDate)

	if v := certain(result.IsCounterOffer); v != "" {
		draft.IsCounterOffer = strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	if v := certain(result.CounterOfferNumber); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			draft.warn("counter_offer_number", v)
		} else {
			draft.CounterOfferNumber = n
		}
	}
	if draft.IsCounterOffer && draft.CounterOfferNumber == 0 {
		draft.Warnings = append(draft.Warnings,
			"document looks like a counter-offer but no offer number was read")
	}
	return draft
}

func (d *Draft) parseDate(field, value string) common.Date {
	date, err := infraextraction.DateField(value)
	if err != nil {
		d.warn(field, value)
		return common.Date{}
	}
	return date
}

// parseCents reads a dollar amount like "$450,000.00" into integer cents.
func (d *Draft) parseCents(field, value string) int64 {
	v := certain(value)
	if v == "" {
		return 0
	}
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '$', ',', ' ':
			return -1
		}
		return r
	}, v)
	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || amount < 0 {
		d.warn(field, value)
		return 0
	}
	return int64(amount*100 + 0.5)
}

func (d *Draft) warn(field, value string) {
	d.Warnings = append(d.Warnings, field+": unparseable value "+strconv.Quote(value))
}

func certain(v string) string {
	if v == infraextraction.Uncertain {
		return ""
	}
	return v
}

// Validate rejects drafts the agent confirmed without resolving problems
// that would corrupt resolution later, like a counter-offer with no number.
func (d *Draft) Validate() error {
	if d.IsCounterOffer && d.CounterOfferNumber < 1 {
		return errors.New(errors.ErrCodeVerificationFailed, "counter-offer draft has no offer number")
	}
	if d.Input.PropertyAddress == "" {
		return errors.New(errors.ErrCodeVerificationFailed, "draft has no property address")
	}
	return nil
}
