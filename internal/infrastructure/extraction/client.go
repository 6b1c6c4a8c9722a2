// Package extraction calls the hosted document-extraction service that
// turns an uploaded purchase contract into structured fields.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dealdeskhq/dealdesk/internal/config"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/logging"
	"github.com/dealdeskhq/dealdesk/pkg/errors"
	"github.com/dealdeskhq/dealdesk/pkg/types/common"
)

// Uncertain is the sentinel the extraction model emits for a field it could
// not read with confidence. Uncertain fields are surfaced to the user for
// manual review instead of being persisted as real values.
const Uncertain = "UNCERTAIN"

// Result holds the structured fields extracted from a contract document.
// Every field may carry the Uncertain sentinel.
type Result struct {
	PropertyAddress        string `json:"property_address"`
	BuyerName              string `json:"buyer_name"`
	SellerName             string `json:"seller_name"`
	PurchasePrice          string `json:"purchase_price"`
	EarnestMoney           string `json:"earnest_money"`
	ContractDate           string `json:"contract_date"`
	InspectionDate         string `json:"inspection_date"`
	InspectionResponseDate string `json:"inspection_response_date"`
	LoanContingencyDate    string `json:"loan_contingency_date"`
	AppraisalDate          string `json:"appraisal_date"`
	FinalWalkthroughDate   string `json:"final_walkthrough_date"`
	ClosingDate            string `json:"closing_date"`
	IsCounterOffer         string `json:"is_counter_offer"`
	CounterOfferNumber     string `json:"counter_offer_number"`
	Summary                string `json:"summary"`
}

// UncertainFields lists the JSON names of fields the model flagged.
func (r Result) UncertainFields() []string {
	pairs := []struct{ name, value string }{
		{"property_address", r.PropertyAddress},
		{"buyer_name", r.BuyerName},
		{"seller_name", r.SellerName},
		{"purchase_price", r.PurchasePrice},
		{"earnest_money", r.EarnestMoney},
		{"contract_date", r.ContractDate},
		{"inspection_date", r.InspectionDate},
		{"inspection_response_date", r.InspectionResponseDate},
		{"loan_contingency_date", r.LoanContingencyDate},
		{"appraisal_date", r.AppraisalDate},
		{"final_walkthrough_date", r.FinalWalkthroughDate},
		{"closing_date", r.ClosingDate},
		{"is_counter_offer", r.IsCounterOffer},
		{"counter_offer_number", r.CounterOfferNumber},
	}
	var out []string
	for _, p := range pairs {
		if p.value == Uncertain {
			out = append(out, p.name)
		}
	}
	return out
}

// Reconcile merges two extraction passes over the same document. A field
// survives only when both passes read the same value; disagreements and
// fields either pass flagged collapse to Uncertain. Summary is free text
// that legitimately varies between passes, so the first pass wins there.
func Reconcile(first, second Result) Result {
	agree := func(a, b string) string {
		if a == b {
			return a
		}
		return Uncertain
	}
	return Result{
		PropertyAddress:        agree(first.PropertyAddress, second.PropertyAddress),
		BuyerName:              agree(first.BuyerName, second.BuyerName),
		SellerName:             agree(first.SellerName, second.SellerName),
		PurchasePrice:          agree(first.PurchasePrice, second.PurchasePrice),
		EarnestMoney:           agree(first.EarnestMoney, second.EarnestMoney),
		ContractDate:           agree(first.ContractDate, second.ContractDate),
		InspectionDate:         agree(first.InspectionDate, second.InspectionDate),
		InspectionResponseDate: agree(first.InspectionResponseDate, second.InspectionResponseDate),
		LoanContingencyDate:    agree(first.LoanContingencyDate, second.LoanContingencyDate),
		AppraisalDate:          agree(first.AppraisalDate, second.AppraisalDate),
		FinalWalkthroughDate:   agree(first.FinalWalkthroughDate, second.FinalWalkthroughDate),
		ClosingDate:            agree(first.ClosingDate, second.ClosingDate),
		IsCounterOffer:         agree(first.IsCounterOffer, second.IsCounterOffer),
		CounterOfferNumber:     agree(first.CounterOfferNumber, second.CounterOfferNumber),
		Summary:                first.Summary,
	}
}

// DateField parses one of the date fields, treating empty and Uncertain
// values as unset.
func DateField(value string) (common.Date, error) {
	if value == "" || value == Uncertain {
		return common.Date{}, nil
	}
	return common.ParseDate(value)
}

type taskRequest struct {
	DocumentURL string          `json:"document_url"`
	Model       string          `json:"model"`
	Schema      json.RawMessage `json:"schema"`
	Candidates  *Result         `json:"candidates,omitempty"`
}

type taskResponse struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
	Data    struct {
		TaskID string `json:"task_id"`
	} `json:"data"`
}

// TaskStatus is the state of one extraction task.
type TaskStatus struct {
	TaskID string          `json:"task_id"`
	State  string          `json:"state"` // pending, running, done, failed
	Error  string          `json:"err_msg,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

type statusResponse struct {
	Code    int        `json:"code"`
	Message string     `json:"msg"`
	Data    TaskStatus `json:"data"`
}

// resultSchema tells the extraction service what to pull out of the
// document. Kept in sync with Result.
var resultSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"property_address": {"type": "string"},
		"buyer_name": {"type": "string"},
		"seller_name": {"type": "string"},
		"purchase_price": {"type": "string"},
		"earnest_money": {"type": "string"},
		"contract_date": {"type": "string", "format": "date"},
		"inspection_date": {"type": "string", "format": "date"},
		"inspection_response_date": {"type": "string", "format": "date"},
		"loan_contingency_date": {"type": "string", "format": "date"},
		"appraisal_date": {"type": "string", "format": "date"},
		"final_walkthrough_date": {"type": "string", "format": "date"},
		"closing_date": {"type": "string", "format": "date"},
		"is_counter_offer": {"type": "string"},
		"counter_offer_number": {"type": "string"},
		"summary": {"type": "string"}
	}
}`)

// Client talks to the extraction service over HTTP.
type Client struct {
	cfg        config.ExtractionConfig
	httpClient *http.Client
	logger     logging.Logger
}

// NewClient builds an extraction client from config.
func NewClient(cfg config.ExtractionConfig, log logging.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
	}
}

// Submit creates an extraction task for the document at url and returns
// the task id.
func (c *Client) Submit(ctx context.Context, documentURL string) (string, error) {
	return c.submit(ctx, "/v1/extract/task", taskRequest{
		DocumentURL: documentURL,
		Model:       c.cfg.Model,
		Schema:      resultSchema,
	})
}

func (c *Client) submit(ctx context.Context, path string, task taskRequest) (string, error) {
	body, err := json.Marshal(task)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal extraction request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to build extraction request")
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	var result taskResponse
	if err := c.do(req, &result); err != nil {
		return "", err
	}
	if result.Code != 0 {
		return "", errors.New(errors.ErrCodeExtractionFailed, "extraction service rejected task").WithDetail(result.Message)
	}

	c.logger.Debug("extraction task created", logging.String("task_id", result.Data.TaskID))
	return result.Data.TaskID, nil
}

// Status fetches the current state of a task.
func (c *Client) Status(ctx context.Context, taskID string) (*TaskStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/v1/extract/task/%s", c.cfg.BaseURL, taskID), nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to build status request")
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	var result statusResponse
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	if result.Code != 0 {
		return nil, errors.New(errors.ErrCodeExtractionFailed, "extraction status error").WithDetail(result.Message)
	}
	return &result.Data, nil
}

// Extract submits the document and polls until the task completes, the poll
// budget runs out, or ctx is cancelled.
func (c *Client) Extract(ctx context.Context, documentURL string) (*Result, error) {
	taskID, err := c.Submit(ctx, documentURL)
	if err != nil {
		return nil, err
	}
	return c.poll(ctx, taskID)
}

// Verify submits a verification task carrying the candidate values from a
// prior pass. The service re-reads the document and answers per field with
// its own value or the Uncertain sentinel.
func (c *Client) Verify(ctx context.Context, documentURL string, candidate *Result) (*Result, error) {
	taskID, err := c.submit(ctx, "/v1/extract/verify", taskRequest{
		DocumentURL: documentURL,
		Model:       c.cfg.Model,
		Schema:      resultSchema,
		Candidates:  candidate,
	})
	if err != nil {
		return nil, err
	}
	return c.poll(ctx, taskID)
}

func (c *Client) poll(ctx context.Context, taskID string) (*Result, error) {
	interval := c.cfg.PollInterval
	if interval == 0 {
		interval = 3 * time.Second
	}
	budget := c.cfg.PollBudget
	if budget == 0 {
		budget = 2 * time.Minute
	}

	deadline := time.Now().Add(budget)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), errors.ErrCodeExtractionTimeout, "extraction cancelled")
		case <-ticker.C:
		}

		status, err := c.Status(ctx, taskID)
		if err != nil {
			return nil, err
		}

		switch status.State {
		case "done":
			var result Result
			if err := json.Unmarshal(status.Result, &result); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode extraction result")
			}
			return &result, nil
		case "failed":
			return nil, errors.New(errors.ErrCodeExtractionFailed, "document extraction failed").WithDetail(status.Error)
		}

		if time.Now().After(deadline) {
			return nil, errors.New(errors.ErrCodeExtractionTimeout, "document extraction timed out").WithDetail(taskID)
		}
	}
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "extraction service unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to read extraction response")
	}
	if resp.StatusCode >= 400 {
		return errors.New(errors.ErrCodeExternalService,
			fmt.Sprintf("extraction service returned %d", resp.StatusCode)).WithDetail(string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to parse extraction response")
	}
	return nil
}
