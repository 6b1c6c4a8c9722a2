package contract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealdeskhq/dealdesk/pkg/errors"
	"github.com/dealdeskhq/dealdesk/pkg/types/common"
)

func newRoot(id string) Contract {
	return Contract{
		ID:               common.ID(id),
		OwnerID:          "agent-1",
		Status:           StatusUnderContract,
		PropertyAddress:  "12 Elm St",
		RepresentingSide: SideBuyer,
		BuyerEmail:       "buyer@example.com",
	}
}

func newCounterOffer(id, rootID string, number int, signed bool) Contract {
	return Contract{
		ID:                 common.ID(id),
		OwnerID:            "agent-1",
		IsCounterOffer:     true,
		OriginalContractID: common.ID(rootID),
		CounterOfferNumber: number,
		AllPartiesSigned:   signed,
		Status:             StatusUnderContract,
		PropertyAddress:    "12 Elm St",
		RepresentingSide:   SideBuyer,
		BuyerEmail:         "buyer@example.com",
	}
}

func TestGroupTransactions(t *testing.T) {
	rootA := newRoot("a")
	rootB := newRoot("b")
	co2 := newCounterOffer("a-2", "a", 2, false)
	co1 := newCounterOffer("a-1", "a", 1, true)

	txns := GroupTransactions([]Contract{co2, rootB, rootA, co1})
	require.Len(t, txns, 2)

	assert.Equal(t, common.ID("a"), txns[0].Key)
	require.NotNil(t, txns[0].Root)
	assert.Equal(t, common.ID("a"), txns[0].Root.ID)
	require.Len(t, txns[0].CounterOffers, 2)
	assert.Equal(t, 1, txns[0].CounterOffers[0].CounterOfferNumber)
	assert.Equal(t, 2, txns[0].CounterOffers[1].CounterOfferNumber)

	assert.Equal(t, common.ID("b"), txns[1].Key)
	assert.Empty(t, txns[1].CounterOffers)
}

func TestResolveRootOnly(t *testing.T) {
	root := newRoot("a")
	root.ClosingDate = common.NewDate(2025, time.March, 1)

	recs, issues := Resolve([]Contract{root})
	require.Empty(t, issues)
	require.Len(t, recs, 1)
	assert.Equal(t, common.ID("a"), recs[0].Contract.ID)
	assert.False(t, recs[0].UsingOriginalDates)
}

func TestResolveHighestSignedCounterOfferWins(t *testing.T) {
	root := newRoot("a")
	co1 := newCounterOffer("a-1", "a", 1, true)
	co1.InspectionDate = common.NewDate(2025, time.January, 10)
	co2 := newCounterOffer("a-2", "a", 2, true)
	co2.InspectionDate = common.NewDate(2025, time.January, 20)
	co3 := newCounterOffer("a-3", "a", 3, false) // unsigned, never wins

	recs, issues := Resolve([]Contract{root, co1, co2, co3})
	require.Empty(t, issues)
	require.Len(t, recs, 1)
	assert.Equal(t, common.ID("a-2"), recs[0].Contract.ID)
	assert.False(t, recs[0].UsingOriginalDates)
	assert.Equal(t, common.NewDate(2025, time.January, 20), recs[0].Contract.InspectionDate)
}

// Mirrors the canonical worked example: a root with dates, a signed dateless
// counter-offer that inherits them, and a later unsigned counter-offer that
// is ignored entirely.
func TestResolveDateInheritance(t *testing.T) {
	root := newRoot("r")
	root.ClosingDate = common.NewDate(2025, time.March, 1)
	root.InspectionDate = common.NewDate(2025, time.January, 15)
	root.InspectionCompleted = true

	c1 := newCounterOffer("c1", "r", 1, true) // signed, no dates of its own
	c1.PurchasePrice = 45_000_000
	c2 := newCounterOffer("c2", "r", 2, false) // unsigned
	c2.ClosingDate = common.NewDate(2025, time.April, 1)

	recs, issues := Resolve([]Contract{root, c1, c2})
	require.Empty(t, issues)
	require.Len(t, recs, 1)

	rec := recs[0]
	assert.Equal(t, common.ID("c1"), rec.Contract.ID)
	assert.True(t, rec.UsingOriginalDates)
	assert.Equal(t, common.NewDate(2025, time.March, 1), rec.Contract.ClosingDate)
	assert.Equal(t, common.NewDate(2025, time.January, 15), rec.Contract.InspectionDate)
	assert.True(t, rec.Contract.InspectionCompleted, "completion flags inherit with the dates")
	assert.Equal(t, int64(45_000_000), rec.Contract.PurchasePrice, "non-date fields stay the winner's")
	assert.True(t, rec.Contract.IsCounterOffer)
	assert.Equal(t, 1, rec.Contract.CounterOfferNumber)
}

func TestResolvePartialDatesDoNotInherit(t *testing.T) {
	root := newRoot("r")
	root.ClosingDate = common.NewDate(2025, time.March, 1)
	root.InspectionDate = common.NewDate(2025, time.January, 15)

	// One date of its own is enough to suppress inheritance; the missing
	// inspection date stays missing.
	co := newCounterOffer("c1", "r", 1, true)
	co.ClosingDate = common.NewDate(2025, time.May, 1)

	recs, issues := Resolve([]Contract{root, co})
	require.Empty(t, issues)
	require.Len(t, recs, 1)
	assert.False(t, recs[0].UsingOriginalDates)
	assert.Equal(t, common.NewDate(2025, time.May, 1), recs[0].Contract.ClosingDate)
	assert.True(t, recs[0].Contract.InspectionDate.IsZero())
}

func TestResolveContractDateSuppressesInheritance(t *testing.T) {
	root := newRoot("r")
	root.ClosingDate = common.NewDate(2025, time.March, 1)

	co := newCounterOffer("c1", "r", 1, true)
	co.ContractDate = common.NewDate(2025, time.January, 2)

	recs, issues := Resolve([]Contract{root, co})
	require.Empty(t, issues)
	require.Len(t, recs, 1)
	assert.False(t, recs[0].UsingOriginalDates, "contract_date counts toward the has-dates check")
	assert.True(t, recs[0].Contract.ClosingDate.IsZero())
}

func TestResolveDanglingCounterOffers(t *testing.T) {
	co := newCounterOffer("c1", "gone", 1, true)

	recs, issues := Resolve([]Contract{co})
	assert.Empty(t, recs)
	require.Len(t, issues, 1)
	assert.Equal(t, errors.ErrCodeTransactionNoRoot, issues[0].Code)
	assert.Equal(t, common.ID("gone"), issues[0].TransactionKey)
}

func TestResolveDuplicateSignedNumbers(t *testing.T) {
	root := newRoot("r")
	root.ClosingDate = common.NewDate(2025, time.March, 1)
	coA := newCounterOffer("c-a", "r", 2, true)
	coB := newCounterOffer("c-b", "r", 2, true)

	recs, issues := Resolve([]Contract{root, coA, coB})
	require.Len(t, issues, 1)
	assert.Equal(t, errors.ErrCodeDuplicateOfferNumber, issues[0].Code)

	// The group falls back to the root instead of guessing a winner.
	require.Len(t, recs, 1)
	assert.Equal(t, common.ID("r"), recs[0].Contract.ID)
}

func TestResolveDuplicateOnLowerNumberIsHarmless(t *testing.T) {
	root := newRoot("r")
	coA := newCounterOffer("c-a", "r", 1, true)
	coB := newCounterOffer("c-b", "r", 1, true)
	co2 := newCounterOffer("c-2", "r", 2, true)

	recs, issues := Resolve([]Contract{root, coA, coB, co2})
	require.Empty(t, issues, "a duplicate below the winning number never governs")
	require.Len(t, recs, 1)
	assert.Equal(t, common.ID("c-2"), recs[0].Contract.ID)
}

func TestResolveIsolatesTransactions(t *testing.T) {
	healthy := newRoot("h")
	healthy.ClosingDate = common.NewDate(2025, time.June, 1)
	orphan := newCounterOffer("o-1", "missing", 1, true)

	recs, issues := Resolve([]Contract{healthy, orphan})
	require.Len(t, recs, 1)
	assert.Equal(t, common.ID("h"), recs[0].Contract.ID)
	require.Len(t, issues, 1)
	assert.Equal(t, errors.ErrCodeTransactionNoRoot, issues[0].Code)
}

func TestResolveDoesNotMutateInput(t *testing.T) {
	root := newRoot("r")
	root.ClosingDate = common.NewDate(2025, time.March, 1)
	co := newCounterOffer("c1", "r", 1, true)
	in := []Contract{root, co}

	recs, _ := Resolve(in)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].UsingOriginalDates)
	assert.True(t, in[1].ClosingDate.IsZero(), "inheritance merges into a copy")
}
