package contract

import (
	"fmt"
	"sort"

	"github.com/dealdeskhq/dealdesk/pkg/errors"
	"github.com/dealdeskhq/dealdesk/pkg/types/common"
)

// Transaction is one root contract together with its counter-offers, as
// produced by GroupTransactions. Root is nil for malformed groups whose
// counter-offers reference a root missing from the input.
type Transaction struct {
	Key           common.ID
	Root          *Contract
	CounterOffers []Contract
}

// ActiveRecord is the outcome of resolving one transaction: the single
// contract whose dates and fields the calendar, dashboard, and reminders
// read. UsingOriginalDates is true when the winning counter-offer carried no
// dates of its own and inherited the root's dates and completion flags.
type ActiveRecord struct {
	Contract           Contract
	UsingOriginalDates bool
}

// Issue reports a data-integrity problem found during resolution. Issues are
// surfaced alongside results rather than failing the whole resolve, so one
// malformed transaction never hides the rest of a user's pipeline.
type Issue struct {
	TransactionKey common.ID
	Code           errors.ErrorCode
	Detail         string
}

func (i Issue) Error() string {
	return fmt.Sprintf("transaction %s: [%s] %s", i.TransactionKey, i.Code, i.Detail)
}

// GroupTransactions partitions a flat contract list into transactions. The
// grouping key is the contract's own id for roots and OriginalContractID for
// counter-offers. Within each group counter-offers are sorted by ascending
// CounterOfferNumber; groups are returned in ascending key order so repeated
// calls over the same input produce identical output.
func GroupTransactions(contracts []Contract) []Transaction {
	byKey := make(map[common.ID]*Transaction)
	for i := range contracts {
		c := contracts[i]
		key := c.TransactionKey()
		txn, ok := byKey[key]
		if !ok {
			txn = &Transaction{Key: key}
			byKey[key] = txn
		}
		if c.IsCounterOffer {
			txn.CounterOffers = append(txn.CounterOffers, c)
		} else {
			txn.Root = &contracts[i]
		}
	}

	keys := make([]common.ID, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := make([]Transaction, 0, len(keys))
	for _, k := range keys {
		txn := byKey[k]
		sort.Slice(txn.CounterOffers, func(i, j int) bool {
			return txn.CounterOffers[i].CounterOfferNumber < txn.CounterOffers[j].CounterOfferNumber
		})
		out = append(out, *txn)
	}
	return out
}

// Resolve groups the given contracts into transactions and selects the active
// record for each. Selection rules, per transaction:
//
//  1. The fully-signed counter-offer with the highest CounterOfferNumber
//     wins. Unsigned counter-offers never win regardless of number.
//  2. If the winner has none of the seven milestone dates set and the root
//     exists, the winner inherits the root's dates and completion flags and
//     the result is flagged UsingOriginalDates. If the winner carries even
//     one date, its dates are used as-is and nothing is inherited.
//  3. With no signed counter-offer, the root itself is the active record.
//
// Two duplicate CounterOfferNumber values among signed counter-offers is a
// data-integrity fault: an Issue with ErrCodeDuplicateOfferNumber is emitted
// and the group falls back to the root rather than guessing which duplicate
// governs. A group whose counter-offers reference an absent root emits
// ErrCodeTransactionNoRoot and contributes no active record.
func Resolve(contracts []Contract) ([]ActiveRecord, []Issue) {
	txns := GroupTransactions(contracts)
	records := make([]ActiveRecord, 0, len(txns))
	var issues []Issue

	for _, txn := range txns {
		rec, issue := resolveTransaction(txn)
		if issue != nil {
			issues = append(issues, *issue)
		}
		if rec != nil {
			records = append(records, *rec)
		}
	}
	return records, issues
}

// resolveTransaction applies the selection rules to a single transaction.
// Pure: no I/O, no clock, no mutation of the input.
func resolveTransaction(txn Transaction) (*ActiveRecord, *Issue) {
	winner, dup := highestSigned(txn.CounterOffers)

	if dup != 0 {
		issue := &Issue{
			TransactionKey: txn.Key,
			Code:           errors.ErrCodeDuplicateOfferNumber,
			Detail:         fmt.Sprintf("multiple signed counter-offers share number %d", dup),
		}
		if txn.Root == nil {
			return nil, issue
		}
		return &ActiveRecord{Contract: *txn.Root}, issue
	}

	if winner == nil {
		if txn.Root == nil {
			return nil, &Issue{
				TransactionKey: txn.Key,
				Code:           errors.ErrCodeTransactionNoRoot,
				Detail:         fmt.Sprintf("%d counter-offer(s) reference a missing root contract", len(txn.CounterOffers)),
			}
		}
		return &ActiveRecord{Contract: *txn.Root}, nil
	}

	if !winner.HasAnyMilestoneDate() && txn.Root != nil {
		merged := inheritDates(*winner, *txn.Root)
		return &ActiveRecord{Contract: merged, UsingOriginalDates: true}, nil
	}
	return &ActiveRecord{Contract: *winner}, nil
}

// highestSigned returns the fully-signed counter-offer with the highest
// number. When two or more signed counter-offers share that highest number it
// returns the duplicated number instead of picking one.
func highestSigned(offers []Contract) (*Contract, int) {
	var winner *Contract
	dup := false
	for i := range offers {
		co := &offers[i]
		if !co.AllPartiesSigned {
			continue
		}
		switch {
		case winner == nil || co.CounterOfferNumber > winner.CounterOfferNumber:
			winner, dup = co, false
		case co.CounterOfferNumber == winner.CounterOfferNumber:
			dup = true
		}
	}
	if winner != nil && dup {
		return nil, winner.CounterOfferNumber
	}
	return winner, 0
}

// inheritDates overlays the root's seven milestone dates and completion flags
// onto a copy of the dateless winner. Every non-date field (parties, price,
// status, lineage) stays the winner's own.
func inheritDates(winner, root Contract) Contract {
	merged := winner

	merged.ContractDate = root.ContractDate
	merged.InspectionDate = root.InspectionDate
	merged.InspectionResponseDate = root.InspectionResponseDate
	merged.LoanContingencyDate = root.LoanContingencyDate
	merged.AppraisalDate = root.AppraisalDate
	merged.FinalWalkthroughDate = root.FinalWalkthroughDate
	merged.ClosingDate = root.ClosingDate

	merged.InspectionCompleted = root.InspectionCompleted
	merged.InspectionResponseCompleted = root.InspectionResponseCompleted
	merged.LoanContingencyCompleted = root.LoanContingencyCompleted
	merged.AppraisalCompleted = root.AppraisalCompleted
	merged.FinalWalkthroughCompleted = root.FinalWalkthroughCompleted
	merged.ClosingCompleted = root.ClosingCompleted

	return merged
}
