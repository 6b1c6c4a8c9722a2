// Package contract defines the contract aggregate and the transaction
// resolution rules at the heart of DealDesk: grouping a flat set of contract
// records into transactions, selecting the single active record whose dates
// govern the calendar, dashboard, and reminders, and projecting that record
// into milestone events.
package contract

import (
	"net/mail"
	"time"

	"github.com/dealdeskhq/dealdesk/pkg/errors"
	"github.com/dealdeskhq/dealdesk/pkg/types/common"
)

// Status is the lifecycle state of a contract record.
type Status string

const (
	StatusPending       Status = "pending"
	StatusUnderContract Status = "under_contract"
	StatusInspection    Status = "inspection"
	StatusFinancing     Status = "financing"
	StatusClosing       Status = "closing"
	StatusClosed        Status = "closed"
	StatusCancelled     Status = "cancelled"
	StatusSuperseded    Status = "superseded"
)

// ValidStatus reports whether s is a known contract status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusUnderContract, StatusInspection, StatusFinancing,
		StatusClosing, StatusClosed, StatusCancelled, StatusSuperseded:
		return true
	}
	return false
}

// Side identifies which party the agent represents in the transaction.
type Side string

const (
	SideBuyer  Side = "buyer"
	SideSeller Side = "seller"
)

// Milestone identifies one of the dated contingency/closing events tracked
// per contract. ContractDate is display-only and never projected as an event.
type Milestone string

const (
	MilestoneInspection         Milestone = "inspection"
	MilestoneInspectionResponse Milestone = "inspection_response"
	MilestoneLoanContingency    Milestone = "loan_contingency"
	MilestoneAppraisal          Milestone = "appraisal"
	MilestoneFinalWalkthrough   Milestone = "final_walkthrough"
	MilestoneClosing            Milestone = "closing"
)

// Milestones lists the six actionable milestones in timeline order.
// Projection, reminders, and ICS export all iterate this slice so every
// consumer sees the same set in the same order.
var Milestones = []Milestone{
	MilestoneInspection,
	MilestoneInspectionResponse,
	MilestoneLoanContingency,
	MilestoneAppraisal,
	MilestoneFinalWalkthrough,
	MilestoneClosing,
}

// ParseMilestone validates a milestone identifier from the wire.
func ParseMilestone(s string) (Milestone, error) {
	m := Milestone(s)
	for _, known := range Milestones {
		if m == known {
			return m, nil
		}
	}
	return "", errors.New(errors.ErrCodeMilestoneUnknown, "unknown milestone type").WithDetail(s)
}

// Label returns the human-readable milestone name used in emails, calendar
// entries, and the dashboard.
func (m Milestone) Label() string {
	switch m {
	case MilestoneInspection:
		return "Inspection"
	case MilestoneInspectionResponse:
		return "Inspection Response"
	case MilestoneLoanContingency:
		return "Loan Contingency"
	case MilestoneAppraisal:
		return "Appraisal"
	case MilestoneFinalWalkthrough:
		return "Final Walkthrough"
	case MilestoneClosing:
		return "Closing"
	}
	return string(m)
}

// Contract is the aggregate root. A transaction is one root contract
// (IsCounterOffer=false) plus zero or more counter-offer amendments that
// reference it via OriginalContractID.
type Contract struct {
	ID      common.ID     `json:"id"`
	OwnerID common.UserID `json:"owner_id"`
	OrgID   common.OrgID  `json:"org_id,omitempty"`

	// Lineage. OriginalContractID is set only when IsCounterOffer is true and
	// always points at the root of the transaction. CounterOfferNumber is the
	// 1-based sequence within the transaction, assigned at creation time.
	IsCounterOffer     bool      `json:"is_counter_offer"`
	OriginalContractID common.ID `json:"original_contract_id,omitempty"`
	CounterOfferNumber int       `json:"counter_offer_number,omitempty"`

	// Signature state.
	AllPartiesSigned bool        `json:"all_parties_signed"`
	SignatureDate    common.Date `json:"signature_date,omitempty"`

	Status Status `json:"status"`

	// Milestone dates, each optional. ContractDate is display-only.
	ContractDate           common.Date `json:"contract_date,omitempty"`
	InspectionDate         common.Date `json:"inspection_date,omitempty"`
	InspectionResponseDate common.Date `json:"inspection_response_date,omitempty"`
	LoanContingencyDate    common.Date `json:"loan_contingency_date,omitempty"`
	AppraisalDate          common.Date `json:"appraisal_date,omitempty"`
	FinalWalkthroughDate   common.Date `json:"final_walkthrough_date,omitempty"`
	ClosingDate            common.Date `json:"closing_date,omitempty"`

	// Per-milestone completion flags. ContractDate has none.
	InspectionCompleted         bool `json:"inspection_completed"`
	InspectionResponseCompleted bool `json:"inspection_response_completed"`
	LoanContingencyCompleted    bool `json:"loan_contingency_completed"`
	AppraisalCompleted          bool `json:"appraisal_completed"`
	FinalWalkthroughCompleted   bool `json:"final_walkthrough_completed"`
	ClosingCompleted            bool `json:"closing_completed"`

	// Party, financial, and free-text fields. Descriptive only; none of these
	// participate in resolution logic.
	PropertyAddress  string `json:"property_address"`
	BuyerName        string `json:"buyer_name,omitempty"`
	BuyerEmail       string `json:"buyer_email,omitempty"`
	BuyerPhone       string `json:"buyer_phone,omitempty"`
	SellerName       string `json:"seller_name,omitempty"`
	SellerEmail      string `json:"seller_email,omitempty"`
	SellerPhone      string `json:"seller_phone,omitempty"`
	RepresentingSide Side   `json:"representing_side"`
	PurchasePrice    int64  `json:"purchase_price_cents,omitempty"`
	EarnestMoney     int64  `json:"earnest_money_cents,omitempty"`
	Notes            string `json:"notes,omitempty"`
	Summary          string `json:"summary,omitempty"`
	DocumentKey      string `json:"document_key,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TransactionKey returns the grouping key for the transaction this record
// belongs to: the root's own id, or the referenced root for counter-offers.
func (c *Contract) TransactionKey() common.ID {
	if c.IsCounterOffer {
		return c.OriginalContractID
	}
	return c.ID
}

// Validate checks structural invariants of a single record.
func (c *Contract) Validate() error {
	if c.ID.IsZero() {
		return errors.InvalidParam("contract id is required")
	}
	if c.OwnerID == "" {
		return errors.InvalidParam("contract owner is required")
	}
	if !ValidStatus(c.Status) {
		return errors.New(errors.ErrCodeContractStatusInvalid, "invalid contract status").WithDetail(string(c.Status))
	}
	if c.IsCounterOffer {
		if c.OriginalContractID.IsZero() {
			return errors.New(errors.ErrCodeDanglingCounterOffer, "counter-offer has no original contract reference")
		}
		if c.CounterOfferNumber < 1 {
			return errors.InvalidParam("counter-offer number must be ≥ 1")
		}
	} else if !c.OriginalContractID.IsZero() {
		return errors.InvalidParam("root contract must not reference an original contract")
	}
	switch c.RepresentingSide {
	case SideBuyer, SideSeller, "":
	default:
		return errors.InvalidParam("representing_side must be buyer or seller")
	}
	return nil
}

// MilestoneDate returns the date field for the given milestone.
func (c *Contract) MilestoneDate(m Milestone) common.Date {
	switch m {
	case MilestoneInspection:
		return c.InspectionDate
	case MilestoneInspectionResponse:
		return c.InspectionResponseDate
	case MilestoneLoanContingency:
		return c.LoanContingencyDate
	case MilestoneAppraisal:
		return c.AppraisalDate
	case MilestoneFinalWalkthrough:
		return c.FinalWalkthroughDate
	case MilestoneClosing:
		return c.ClosingDate
	}
	return common.Date{}
}

// MilestoneCompleted returns the completion flag for the given milestone.
func (c *Contract) MilestoneCompleted(m Milestone) bool {
	switch m {
	case MilestoneInspection:
		return c.InspectionCompleted
	case MilestoneInspectionResponse:
		return c.InspectionResponseCompleted
	case MilestoneLoanContingency:
		return c.LoanContingencyCompleted
	case MilestoneAppraisal:
		return c.AppraisalCompleted
	case MilestoneFinalWalkthrough:
		return c.FinalWalkthroughCompleted
	case MilestoneClosing:
		return c.ClosingCompleted
	}
	return false
}

// HasAnyMilestoneDate reports whether any of the seven date fields is set,
// including ContractDate. This is the single definition of the "has dates"
// predicate used by the date-inheritance rule in Resolve; every call site
// shares it.
func (c *Contract) HasAnyMilestoneDate() bool {
	if !c.ContractDate.IsZero() {
		return true
	}
	for _, m := range Milestones {
		if !c.MilestoneDate(m).IsZero() {
			return true
		}
	}
	return false
}

// CompleteMilestone sets the completion flag for the given milestone. It is
// the single state transition that couples closing completion to contract
// status: marking closing complete moves the contract to StatusClosed, and
// un-marking it moves a closed contract back to StatusClosing.
func (c *Contract) CompleteMilestone(m Milestone, done bool) error {
	if c.MilestoneDate(m).IsZero() {
		return errors.New(errors.ErrCodeMilestoneDateMissing, "milestone has no date set").WithDetail(string(m))
	}
	switch m {
	case MilestoneInspection:
		c.InspectionCompleted = done
	case MilestoneInspectionResponse:
		c.InspectionResponseCompleted = done
	case MilestoneLoanContingency:
		c.LoanContingencyCompleted = done
	case MilestoneAppraisal:
		c.AppraisalCompleted = done
	case MilestoneFinalWalkthrough:
		c.FinalWalkthroughCompleted = done
	case MilestoneClosing:
		c.ClosingCompleted = done
		if done {
			c.Status = StatusClosed
		} else if c.Status == StatusClosed {
			c.Status = StatusClosing
		}
	default:
		return errors.New(errors.ErrCodeMilestoneUnknown, "unknown milestone type").WithDetail(string(m))
	}
	return nil
}

// Cancel moves the record to StatusCancelled. Cancelling is idempotent.
func (c *Contract) Cancel() {
	c.Status = StatusCancelled
}

// MarkSuperseded moves the record to StatusSuperseded. Applied to the root
// and all non-winning counter-offers once a counter-offer is fully signed.
func (c *Contract) MarkSuperseded() {
	c.Status = StatusSuperseded
}

// RepresentedEmail returns the client email for the side the agent
// represents: buyer email when representing the buyer, seller email
// otherwise.
func (c *Contract) RepresentedEmail() string {
	if c.RepresentingSide == SideBuyer {
		return c.BuyerEmail
	}
	return c.SellerEmail
}

// HasValidRepresentedEmail reports whether the represented party's email is
// syntactically valid per RFC 5322 address parsing.
func (c *Contract) HasValidRepresentedEmail() bool {
	addr := c.RepresentedEmail()
	if addr == "" {
		return false
	}
	_, err := mail.ParseAddress(addr)
	return err == nil
}
