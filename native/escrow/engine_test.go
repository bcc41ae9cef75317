package escrow_test

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"deedescrow/core/events"
	"deedescrow/core/state"
	"deedescrow/native/bank"
	"deedescrow/native/common"
	"deedescrow/native/escrow"
	"deedescrow/native/registry"
	"deedescrow/storage"
)

type harness struct {
	t        *testing.T
	journal  *storage.Journal
	manager  *state.Manager
	bank     *bank.Ledger
	registry *registry.Registry
	engine   *escrow.Engine
	recorder *events.Recorder

	seller, buyer, inspector, lender, stranger [20]byte
	assetID                                    uint64
}

func newTestAddress(fill byte) [20]byte {
	var out [20]byte
	copy(out[:], bytes.Repeat([]byte{fill}, 20))
	return out
}

// milli converts thousandths of a coin into base units with 18 decimals.
func milli(v int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), big.NewInt(1_000_000_000_000_000))
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	h := &harness{
		t:         t,
		journal:   storage.NewJournal(db),
		recorder:  &events.Recorder{},
		seller:    newTestAddress(0x01),
		buyer:     newTestAddress(0x02),
		inspector: newTestAddress(0x03),
		lender:    newTestAddress(0x04),
		stranger:  newTestAddress(0x05),
	}
	h.manager = state.NewManager(h.journal)
	h.bank = bank.NewLedger(h.manager)
	h.bank.SetEmitter(h.recorder)
	h.registry = registry.New(h.manager)
	h.registry.SetEmitter(h.recorder)

	h.engine = escrow.NewEngine(escrow.Roles{Seller: h.seller, Inspector: h.inspector, Lender: h.lender})
	h.engine.SetState(h.manager)
	h.engine.SetRegistry(h.registry)
	h.engine.SetBank(h.bank)
	h.engine.SetEmitter(h.recorder)
	h.engine.SetNowFunc(func() int64 { return 1_700_000_000 })

	for _, addr := range [][20]byte{h.buyer, h.lender, h.stranger} {
		if err := h.bank.Credit(addr, milli(1_000_000)); err != nil {
			t.Fatalf("credit: %v", err)
		}
	}
	h.assetID = h.mintApproved()
	return h
}

func (h *harness) mintApproved() uint64 {
	h.t.Helper()
	id, err := h.registry.Mint(h.seller, "ipfs://deed")
	if err != nil {
		h.t.Fatalf("mint: %v", err)
	}
	if err := h.registry.Approve(h.seller, h.engine.Address(), id); err != nil {
		h.t.Fatalf("approve engine: %v", err)
	}
	return id
}

func (h *harness) list(id uint64, price, deposit *big.Int) {
	h.t.Helper()
	if _, err := h.engine.List(h.seller, id, price, deposit, h.buyer); err != nil {
		h.t.Fatalf("list: %v", err)
	}
}

func (h *harness) balance(addr [20]byte) *big.Int {
	h.t.Helper()
	bal, err := h.bank.Balance(addr)
	if err != nil {
		h.t.Fatalf("balance: %v", err)
	}
	return bal
}

func (h *harness) owner(id uint64) [20]byte {
	h.t.Helper()
	owner, err := h.registry.OwnerOf(id)
	if err != nil {
		h.t.Fatalf("owner: %v", err)
	}
	return owner
}

func (h *harness) held(id uint64) *big.Int {
	h.t.Helper()
	held, err := h.engine.HeldBalance(id)
	if err != nil {
		h.t.Fatalf("held: %v", err)
	}
	return held
}

func (h *harness) approveAll(id uint64, approvers ...[20]byte) {
	h.t.Helper()
	for _, addr := range approvers {
		if err := h.engine.ApproveSale(addr, id); err != nil {
			h.t.Fatalf("approve: %v", err)
		}
	}
}

func (h *harness) deposit(id uint64, amount *big.Int) {
	h.t.Helper()
	if err := h.engine.DepositEarnest(h.buyer, id, amount); err != nil {
		h.t.Fatalf("deposit: %v", err)
	}
}

func (h *harness) fund(id uint64, amount *big.Int) {
	h.t.Helper()
	if err := h.engine.FundLoan(h.lender, id, amount); err != nil {
		h.t.Fatalf("fund loan: %v", err)
	}
}

func (h *harness) inspect(id uint64, passed bool) {
	h.t.Helper()
	if err := h.engine.UpdateInspectionStatus(h.inspector, id, passed); err != nil {
		h.t.Fatalf("inspect: %v", err)
	}
}

func (h *harness) setPolicy(addr [20]byte, reject bool) {
	h.t.Helper()
	if err := h.bank.SetPaymentPolicy(addr, reject); err != nil {
		h.t.Fatalf("set payment policy: %v", err)
	}
}

func (h *harness) hasEvent(eventType string) bool {
	for _, evt := range h.recorder.Events() {
		if evt.Type == eventType {
			return true
		}
	}
	return false
}

// observed captures everything a failed operation must leave untouched.
type observed struct {
	owner                               [20]byte
	held, engine, seller, buyer, lender *big.Int
	listing                             escrow.Listing
	approvals                           [3]bool
	events                              int
}

func (h *harness) observe(id uint64) observed {
	h.t.Helper()
	listing, err := h.engine.Listing(id)
	if err != nil {
		h.t.Fatalf("listing: %v", err)
	}
	var approvals [3]bool
	for i, addr := range [][20]byte{h.buyer, h.seller, h.lender} {
		approvals[i], _ = h.engine.Approval(id, addr)
	}
	engineBal, _ := h.engine.Balance()
	return observed{
		owner:     h.owner(id),
		held:      h.held(id),
		engine:    engineBal,
		seller:    h.balance(h.seller),
		buyer:     h.balance(h.buyer),
		lender:    h.balance(h.lender),
		listing:   *listing,
		approvals: approvals,
		events:    h.recorder.Len(),
	}
}

func (h *harness) assertUnchanged(before observed, id uint64) {
	h.t.Helper()
	after := h.observe(id)
	if after.owner != before.owner {
		h.t.Fatalf("custody changed")
	}
	for name, pair := range map[string][2]*big.Int{
		"held":   {before.held, after.held},
		"engine": {before.engine, after.engine},
		"seller": {before.seller, after.seller},
		"buyer":  {before.buyer, after.buyer},
		"lender": {before.lender, after.lender},
	} {
		if pair[0].Cmp(pair[1]) != 0 {
			h.t.Fatalf("%s balance changed from %s to %s", name, pair[0], pair[1])
		}
	}
	if after.listing.Sold != before.listing.Sold || after.listing.IsListed != before.listing.IsListed ||
		after.listing.InspectionPassed != before.listing.InspectionPassed || after.listing.Cancelled != before.listing.Cancelled {
		h.t.Fatalf("listing flags changed: %+v -> %+v", before.listing, after.listing)
	}
	if after.approvals != before.approvals {
		h.t.Fatalf("approvals changed")
	}
	if after.events != before.events {
		h.t.Fatalf("failed operation left %d events behind", after.events-before.events)
	}
}

func TestListRoundTrip(t *testing.T) {
	h := newHarness(t)
	h.list(h.assetID, milli(100_000), milli(100))

	listing, err := h.engine.Listing(h.assetID)
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if listing.Seller != h.seller || listing.Buyer != h.buyer {
		t.Fatalf("unexpected parties")
	}
	if listing.PurchasePrice.Cmp(milli(100_000)) != 0 || listing.EscrowAmount.Cmp(milli(100)) != 0 {
		t.Fatalf("unexpected amounts %s/%s", listing.PurchasePrice, listing.EscrowAmount)
	}
	if listing.Sold || listing.InspectionPassed || !listing.IsListed {
		t.Fatalf("unexpected flags %+v", listing)
	}
	if listing.Status() != escrow.ListingActive {
		t.Fatalf("unexpected status %s", listing.Status())
	}
	if h.owner(h.assetID) != h.engine.Address() {
		t.Fatalf("engine did not take custody")
	}
}

func TestListGuards(t *testing.T) {
	h := newHarness(t)

	if _, err := h.engine.List(h.stranger, h.assetID, milli(10), milli(1), h.buyer); !errors.Is(err, escrow.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := h.engine.List(h.seller, h.assetID, milli(10), milli(11), h.buyer); !errors.Is(err, escrow.ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
	if _, err := h.engine.List(h.seller, h.assetID, big.NewInt(0), big.NewInt(0), h.buyer); !errors.Is(err, escrow.ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice for zero price, got %v", err)
	}
	if _, err := h.engine.List(h.seller, h.assetID, milli(10), milli(1), [20]byte{}); !errors.Is(err, escrow.ErrInvalidBuyer) {
		t.Fatalf("expected ErrInvalidBuyer, got %v", err)
	}
	if _, err := h.engine.List(h.seller, h.assetID, milli(10), milli(1), h.seller); !errors.Is(err, escrow.ErrInvalidBuyer) {
		t.Fatalf("seller cannot buy their own listing, got %v", err)
	}
	if _, err := h.engine.Listing(h.assetID); !errors.Is(err, escrow.ErrNotListed) {
		t.Fatalf("rejected list must not create a listing, got %v", err)
	}

	unapproved, err := h.registry.Mint(h.seller, "")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := h.engine.List(h.seller, unapproved, milli(10), milli(1), h.buyer); !errors.Is(err, escrow.ErrNotOwnerOrUnapproved) {
		t.Fatalf("expected ErrNotOwnerOrUnapproved, got %v", err)
	}
	if _, err := h.engine.List(h.seller, 999, milli(10), milli(1), h.buyer); !errors.Is(err, escrow.ErrNotOwnerOrUnapproved) {
		t.Fatalf("expected ErrNotOwnerOrUnapproved for unknown asset, got %v", err)
	}
	foreign, err := h.registry.Mint(h.stranger, "")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := h.registry.Approve(h.stranger, h.engine.Address(), foreign); err != nil {
		t.Fatalf("approve engine: %v", err)
	}
	if _, err := h.engine.List(h.seller, foreign, milli(10), milli(1), h.buyer); !errors.Is(err, escrow.ErrNotOwnerOrUnapproved) {
		t.Fatalf("listing someone else's asset must fail, got %v", err)
	}

	h.list(h.assetID, milli(10), milli(1))
	if _, err := h.engine.List(h.seller, h.assetID, milli(10), milli(1), h.buyer); !errors.Is(err, escrow.ErrAlreadyListed) {
		t.Fatalf("expected ErrAlreadyListed, got %v", err)
	}
}

func TestScenarioCompleteSale(t *testing.T) {
	h := newHarness(t)
	price := milli(100_000)
	h.list(h.assetID, price, milli(100))
	sellerBefore := h.balance(h.seller)

	if err := h.engine.DepositEarnest(h.buyer, h.assetID, price); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := h.engine.UpdateInspectionStatus(h.inspector, h.assetID, true); err != nil {
		t.Fatalf("inspect: %v", err)
	}
	h.approveAll(h.assetID, h.buyer, h.seller, h.lender)
	if err := h.engine.FinalizeSale(h.buyer, h.assetID); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	if h.owner(h.assetID) != h.buyer {
		t.Fatalf("buyer does not own the asset")
	}
	listing, _ := h.engine.Listing(h.assetID)
	if !listing.Sold || listing.IsListed || listing.Status() != escrow.ListingSold {
		t.Fatalf("unexpected final listing %+v", listing)
	}
	gain := new(big.Int).Sub(h.balance(h.seller), sellerBefore)
	if gain.Cmp(price) < 0 {
		t.Fatalf("seller gained %s, expected at least %s", gain, price)
	}
	if h.held(h.assetID).Sign() != 0 {
		t.Fatalf("ledger not drained")
	}
	if bal, _ := h.engine.Balance(); bal.Sign() != 0 {
		t.Fatalf("engine retains %s", bal)
	}

	if !h.hasEvent(events.TypeEscrowSaleFinalized) {
		t.Fatalf("expected sale finalized event")
	}

	if err := h.engine.FinalizeSale(h.buyer, h.assetID); !errors.Is(err, escrow.ErrAlreadySold) {
		t.Fatalf("expected ErrAlreadySold on second finalize, got %v", err)
	}
	if _, err := h.engine.List(h.seller, h.assetID, price, milli(1), h.buyer); !errors.Is(err, escrow.ErrAlreadySold) {
		t.Fatalf("expected ErrAlreadySold on relist, got %v", err)
	}
}

func TestScenarioNotInspected(t *testing.T) {
	h := newHarness(t)
	price := milli(100_000)
	h.list(h.assetID, price, milli(100))
	h.deposit(h.assetID, price)
	h.approveAll(h.assetID, h.buyer, h.seller, h.lender)

	before := h.observe(h.assetID)
	if err := h.engine.FinalizeSale(h.buyer, h.assetID); !errors.Is(err, escrow.ErrNotInspected) {
		t.Fatalf("expected ErrNotInspected, got %v", err)
	}
	h.assertUnchanged(before, h.assetID)

	h.inspect(h.assetID, true)
	h.inspect(h.assetID, false)
	if err := h.engine.FinalizeSale(h.buyer, h.assetID); !errors.Is(err, escrow.ErrNotInspected) {
		t.Fatalf("inspection must be reversible, got %v", err)
	}
}

func TestScenarioDepositByStranger(t *testing.T) {
	h := newHarness(t)
	h.list(h.assetID, milli(100_000), milli(100))
	strangerBefore := h.balance(h.stranger)
	before := h.observe(h.assetID)

	if err := h.engine.DepositEarnest(h.stranger, h.assetID, milli(100)); !errors.Is(err, escrow.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	h.assertUnchanged(before, h.assetID)
	if h.balance(h.stranger).Cmp(strangerBefore) != 0 {
		t.Fatalf("stranger balance changed")
	}
}

func TestScenarioMissingLenderApproval(t *testing.T) {
	h := newHarness(t)
	price := milli(100_000)
	h.list(h.assetID, price, milli(100))
	h.deposit(h.assetID, price)
	h.inspect(h.assetID, true)
	h.approveAll(h.assetID, h.buyer, h.seller, h.stranger)

	before := h.observe(h.assetID)
	err := h.engine.FinalizeSale(h.seller, h.assetID)
	if !errors.Is(err, escrow.ErrNotApproved) {
		t.Fatalf("expected ErrNotApproved, got %v", err)
	}
	h.assertUnchanged(before, h.assetID)
}

func TestFinalizeRequiresFullFunding(t *testing.T) {
	h := newHarness(t)
	price := milli(100_000)
	h.list(h.assetID, price, milli(100))
	h.deposit(h.assetID, milli(100))
	h.inspect(h.assetID, true)
	h.approveAll(h.assetID, h.buyer, h.seller, h.lender)

	before := h.observe(h.assetID)
	if err := h.engine.FinalizeSale(h.buyer, h.assetID); !errors.Is(err, escrow.ErrInsufficientEscrow) {
		t.Fatalf("expected ErrInsufficientEscrow, got %v", err)
	}
	h.assertUnchanged(before, h.assetID)

	if err := h.engine.FundLoan(h.buyer, h.assetID, milli(99_900)); !errors.Is(err, escrow.ErrUnauthorized) {
		t.Fatalf("only the lender may fund, got %v", err)
	}
	if err := h.engine.FundLoan(h.lender, h.assetID, milli(99_900)); err != nil {
		t.Fatalf("fund loan: %v", err)
	}
	if h.held(h.assetID).Cmp(price) != 0 {
		t.Fatalf("expected ledger to equal price, got %s", h.held(h.assetID))
	}
	if err := h.engine.FinalizeSale(h.lender, h.assetID); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if loan, _ := h.engine.LoanBalance(h.assetID); loan.Sign() != 0 {
		t.Fatalf("loan ledger not drained: %s", loan)
	}
}

func TestLedgersArePerListing(t *testing.T) {
	h := newHarness(t)
	second := h.mintApproved()
	price := milli(1_000)
	h.list(h.assetID, price, milli(10))
	h.list(second, price, milli(10))

	if err := h.engine.DepositEarnest(h.buyer, second, price); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	h.inspect(h.assetID, true)
	h.approveAll(h.assetID, h.buyer, h.seller, h.lender)

	if err := h.engine.FinalizeSale(h.buyer, h.assetID); !errors.Is(err, escrow.ErrInsufficientEscrow) {
		t.Fatalf("funds held for another listing must not satisfy finalize, got %v", err)
	}
	if bal, _ := h.engine.Balance(); bal.Cmp(price) != 0 {
		t.Fatalf("engine total should include every ledger, got %s", bal)
	}
}

func TestExtraDepositsGoToSeller(t *testing.T) {
	h := newHarness(t)
	price := milli(1_000)
	h.list(h.assetID, price, milli(10))
	h.deposit(h.assetID, price)
	h.deposit(h.assetID, milli(5))
	h.inspect(h.assetID, true)
	h.approveAll(h.assetID, h.buyer, h.seller, h.lender)

	if err := h.engine.FinalizeSale(h.buyer, h.assetID); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	want := new(big.Int).Add(price, milli(5))
	if h.balance(h.seller).Cmp(want) != 0 {
		t.Fatalf("seller should receive the whole ledger %s, got %s", want, h.balance(h.seller))
	}
}

func TestFinalizePaymentFailureIsAtomic(t *testing.T) {
	h := newHarness(t)
	price := milli(1_000)
	h.list(h.assetID, price, milli(10))
	h.deposit(h.assetID, price)
	h.inspect(h.assetID, true)
	h.approveAll(h.assetID, h.buyer, h.seller, h.lender)
	h.setPolicy(h.seller, true)

	before := h.observe(h.assetID)
	if err := h.engine.FinalizeSale(h.buyer, h.assetID); !errors.Is(err, escrow.ErrPaymentFailed) {
		t.Fatalf("expected ErrPaymentFailed, got %v", err)
	}
	h.assertUnchanged(before, h.assetID)
	if h.owner(h.assetID) != h.engine.Address() {
		t.Fatalf("asset left custody despite failed payment")
	}

	h.setPolicy(h.seller, false)
	if err := h.engine.FinalizeSale(h.buyer, h.assetID); err != nil {
		t.Fatalf("finalize after policy reset: %v", err)
	}
}

func TestCancelBeforeInspectionRefundsBuyer(t *testing.T) {
	h := newHarness(t)
	h.list(h.assetID, milli(1_000), milli(10))
	buyerBefore := h.balance(h.buyer)
	h.deposit(h.assetID, milli(10))
	h.approveAll(h.assetID, h.buyer, h.seller)

	for _, caller := range [][20]byte{h.stranger, h.lender, h.inspector} {
		if err := h.engine.CancelSale(caller, h.assetID); !errors.Is(err, escrow.ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	}
	if err := h.engine.CancelSale(h.buyer, h.assetID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if h.balance(h.buyer).Cmp(buyerBefore) != 0 {
		t.Fatalf("buyer not refunded: %s vs %s", h.balance(h.buyer), buyerBefore)
	}
	if h.owner(h.assetID) != h.seller {
		t.Fatalf("custody not returned to seller")
	}
	listing, _ := h.engine.Listing(h.assetID)
	if !listing.Cancelled || listing.IsListed || listing.Status() != escrow.ListingCancelled {
		t.Fatalf("unexpected cancelled listing %+v", listing)
	}
	if ok, _ := h.engine.Approval(h.assetID, h.buyer); ok {
		t.Fatalf("approvals must be cleared on cancel")
	}
	if err := h.engine.DepositEarnest(h.buyer, h.assetID, milli(1)); !errors.Is(err, escrow.ErrNotListed) {
		t.Fatalf("expected ErrNotListed after cancel, got %v", err)
	}

	if err := h.registry.Approve(h.seller, h.engine.Address(), h.assetID); err != nil {
		t.Fatalf("re-approve: %v", err)
	}
	h.list(h.assetID, milli(2_000), milli(20))
	relisted, _ := h.engine.Listing(h.assetID)
	if relisted.Cancelled || !relisted.IsListed || relisted.PurchasePrice.Cmp(milli(2_000)) != 0 {
		t.Fatalf("unexpected relisted record %+v", relisted)
	}
}

func TestCancelAfterInspectionPaysSeller(t *testing.T) {
	h := newHarness(t)
	h.list(h.assetID, milli(1_000), milli(10))
	h.deposit(h.assetID, milli(10))
	h.inspect(h.assetID, true)

	if err := h.engine.CancelSale(h.seller, h.assetID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if h.balance(h.seller).Cmp(milli(10)) != 0 {
		t.Fatalf("seller should keep the earnest deposit, got %s", h.balance(h.seller))
	}
	if h.held(h.assetID).Sign() != 0 {
		t.Fatalf("ledger not drained")
	}
}

func TestDepositPolicies(t *testing.T) {
	h := newHarness(t)
	h.list(h.assetID, milli(1_000), milli(10))

	if err := h.engine.DepositEarnest(h.buyer, h.assetID, big.NewInt(-1)); !errors.Is(err, escrow.ErrInvalidDeposit) {
		t.Fatalf("expected ErrInvalidDeposit for negative amount, got %v", err)
	}
	h.engine.SetDepositPolicy(escrow.DepositPolicy{Mode: escrow.DepositMinimum})
	if err := h.engine.DepositEarnest(h.buyer, h.assetID, milli(9)); !errors.Is(err, escrow.ErrInvalidDeposit) {
		t.Fatalf("expected ErrInvalidDeposit below minimum, got %v", err)
	}
	if err := h.engine.DepositEarnest(h.buyer, h.assetID, milli(50)); err != nil {
		t.Fatalf("deposit above minimum: %v", err)
	}
	h.engine.SetDepositPolicy(escrow.DepositPolicy{Mode: escrow.DepositExact})
	if err := h.engine.DepositEarnest(h.buyer, h.assetID, milli(50)); !errors.Is(err, escrow.ErrInvalidDeposit) {
		t.Fatalf("expected ErrInvalidDeposit for inexact amount, got %v", err)
	}
	if err := h.engine.DepositEarnest(h.buyer, h.assetID, milli(10)); err != nil {
		t.Fatalf("exact deposit: %v", err)
	}
	if h.held(h.assetID).Cmp(milli(60)) != 0 {
		t.Fatalf("unexpected ledger %s", h.held(h.assetID))
	}
	if err := h.engine.DepositEarnest(h.buyer, h.assetID, milli(2_000_000)); err == nil {
		t.Fatalf("expected deposit beyond balance to fail")
	}
	if h.held(h.assetID).Cmp(milli(60)) != 0 {
		t.Fatalf("failed deposit changed the ledger")
	}
}

func TestApprovalsFromOutsidersAreInert(t *testing.T) {
	h := newHarness(t)
	if err := h.engine.ApproveSale(h.buyer, h.assetID); !errors.Is(err, escrow.ErrNotListed) {
		t.Fatalf("expected ErrNotListed, got %v", err)
	}
	h.list(h.assetID, milli(1_000), milli(10))
	if err := h.engine.ApproveSale(h.stranger, h.assetID); err != nil {
		t.Fatalf("outsider approval should be recorded: %v", err)
	}
	if ok, _ := h.engine.Approval(h.assetID, h.stranger); !ok {
		t.Fatalf("outsider approval not stored")
	}
	roles := h.engine.Roles()
	listing, _ := h.engine.Listing(h.assetID)
	if roles.IsGatingApprover(listing, h.stranger) {
		t.Fatalf("outsider must not gate finalization")
	}
	if !roles.IsGatingApprover(listing, h.buyer) || !roles.IsGatingApprover(listing, h.lender) {
		t.Fatalf("buyer and lender gate finalization")
	}
}

func TestInspectionGuards(t *testing.T) {
	h := newHarness(t)
	if err := h.engine.UpdateInspectionStatus(h.inspector, h.assetID, true); !errors.Is(err, escrow.ErrNotListed) {
		t.Fatalf("expected ErrNotListed, got %v", err)
	}
	h.list(h.assetID, milli(1_000), milli(10))
	if err := h.engine.UpdateInspectionStatus(h.seller, h.assetID, true); !errors.Is(err, escrow.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestPausedModuleRejectsMutations(t *testing.T) {
	h := newHarness(t)
	h.list(h.assetID, milli(1_000), milli(10))
	h.engine.SetPauses(common.StaticPauses{common.ModuleEscrow: true})

	if err := h.engine.DepositEarnest(h.buyer, h.assetID, milli(10)); !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := h.engine.CancelSale(h.seller, h.assetID); !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if _, err := h.engine.Listing(h.assetID); err != nil {
		t.Fatalf("reads must keep working while paused: %v", err)
	}
}

func TestCancelReturnsLoanToLender(t *testing.T) {
	for _, inspected := range []bool{false, true} {
		h := newHarness(t)
		price := milli(1_000)
		h.list(h.assetID, price, milli(10))
		buyerBefore, lenderBefore := h.balance(h.buyer), h.balance(h.lender)
		h.deposit(h.assetID, milli(10))
		h.fund(h.assetID, milli(990))
		if loan, _ := h.engine.LoanBalance(h.assetID); loan.Cmp(milli(990)) != 0 {
			t.Fatalf("expected loan ledger of %s, got %s", milli(990), loan)
		}
		if h.held(h.assetID).Cmp(price) != 0 {
			t.Fatalf("held should include the loan, got %s", h.held(h.assetID))
		}
		if inspected {
			h.inspect(h.assetID, true)
		}

		if err := h.engine.CancelSale(h.buyer, h.assetID); err != nil {
			t.Fatalf("cancel (inspected=%v): %v", inspected, err)
		}
		if h.balance(h.lender).Cmp(lenderBefore) != 0 {
			t.Fatalf("lender not made whole (inspected=%v): %s vs %s", inspected, h.balance(h.lender), lenderBefore)
		}
		wantBuyer := buyerBefore
		wantSeller := big.NewInt(0)
		if inspected {
			wantBuyer = new(big.Int).Sub(buyerBefore, milli(10))
			wantSeller = milli(10)
		}
		if h.balance(h.buyer).Cmp(wantBuyer) != 0 {
			t.Fatalf("buyer balance %s, want %s (inspected=%v)", h.balance(h.buyer), wantBuyer, inspected)
		}
		if h.balance(h.seller).Cmp(wantSeller) != 0 {
			t.Fatalf("seller balance %s, want %s (inspected=%v)", h.balance(h.seller), wantSeller, inspected)
		}
		if loan, _ := h.engine.LoanBalance(h.assetID); loan.Sign() != 0 || h.held(h.assetID).Sign() != 0 {
			t.Fatalf("ledgers not drained after cancel")
		}
		if bal, _ := h.engine.Balance(); bal.Sign() != 0 {
			t.Fatalf("engine retains %s", bal)
		}
	}
}

func TestCancelParksRejectedRefund(t *testing.T) {
	h := newHarness(t)
	h.list(h.assetID, milli(1_000), milli(10))
	buyerBefore := h.balance(h.buyer)
	h.deposit(h.assetID, milli(10))
	h.setPolicy(h.buyer, true)

	if err := h.engine.CancelSale(h.seller, h.assetID); err != nil {
		t.Fatalf("cancel must not be blocked by the buyer's payment policy: %v", err)
	}
	if h.owner(h.assetID) != h.seller {
		t.Fatalf("custody not returned to seller")
	}
	listing, _ := h.engine.Listing(h.assetID)
	if !listing.Cancelled || listing.IsListed {
		t.Fatalf("unexpected listing %+v", listing)
	}
	if !h.hasEvent(events.TypeEscrowRefundDeferred) {
		t.Fatalf("expected refund deferred event")
	}
	owed, err := h.engine.PendingRefund(h.assetID, h.buyer)
	if err != nil || owed.Cmp(milli(10)) != 0 {
		t.Fatalf("expected parked refund of %s, got %v (%v)", milli(10), owed, err)
	}
	if bal, _ := h.engine.Balance(); bal.Cmp(milli(10)) != 0 {
		t.Fatalf("engine should keep the parked refund, holds %s", bal)
	}

	if err := h.engine.ClaimRefund(h.buyer, h.assetID); !errors.Is(err, escrow.ErrPaymentFailed) {
		t.Fatalf("expected ErrPaymentFailed while payments are rejected, got %v", err)
	}
	if owed, _ := h.engine.PendingRefund(h.assetID, h.buyer); owed.Cmp(milli(10)) != 0 {
		t.Fatalf("failed claim changed the parked refund: %s", owed)
	}
	if err := h.engine.ClaimRefund(h.stranger, h.assetID); !errors.Is(err, escrow.ErrNoRefund) {
		t.Fatalf("expected ErrNoRefund for stranger, got %v", err)
	}

	h.setPolicy(h.buyer, false)
	if err := h.engine.ClaimRefund(h.buyer, h.assetID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if h.balance(h.buyer).Cmp(buyerBefore) != 0 {
		t.Fatalf("buyer not refunded: %s vs %s", h.balance(h.buyer), buyerBefore)
	}
	if !h.hasEvent(events.TypeEscrowRefundClaimed) {
		t.Fatalf("expected refund claimed event")
	}
	if err := h.engine.ClaimRefund(h.buyer, h.assetID); !errors.Is(err, escrow.ErrNoRefund) {
		t.Fatalf("expected ErrNoRefund on second claim, got %v", err)
	}
	if bal, _ := h.engine.Balance(); bal.Sign() != 0 {
		t.Fatalf("engine retains %s", bal)
	}
}

// inertRegistry reports every transfer as successful without moving the asset.
type inertRegistry struct {
	*registry.Registry
}

func (inertRegistry) TransferFrom(caller, from, to [20]byte, id uint64) error { return nil }

func TestCustodyTransferMustTakeEffect(t *testing.T) {
	t.Run("list", func(t *testing.T) {
		h := newHarness(t)
		h.engine.SetRegistry(inertRegistry{h.registry})
		eventsBefore := h.recorder.Len()

		if _, err := h.engine.List(h.seller, h.assetID, milli(1_000), milli(10), h.buyer); !errors.Is(err, escrow.ErrCustodyTransferFailed) {
			t.Fatalf("expected ErrCustodyTransferFailed, got %v", err)
		}
		if _, err := h.engine.Listing(h.assetID); !errors.Is(err, escrow.ErrNotListed) {
			t.Fatalf("failed list must not create a listing, got %v", err)
		}
		if h.owner(h.assetID) != h.seller {
			t.Fatalf("asset moved despite failed custody transfer")
		}
		if h.recorder.Len() != eventsBefore {
			t.Fatalf("failed list emitted events")
		}
	})

	t.Run("finalize", func(t *testing.T) {
		h := newHarness(t)
		h.list(h.assetID, milli(1_000), milli(10))
		h.deposit(h.assetID, milli(1_000))
		h.inspect(h.assetID, true)
		h.approveAll(h.assetID, h.buyer, h.seller, h.lender)
		h.engine.SetRegistry(inertRegistry{h.registry})

		before := h.observe(h.assetID)
		if err := h.engine.FinalizeSale(h.buyer, h.assetID); !errors.Is(err, escrow.ErrCustodyTransferFailed) {
			t.Fatalf("expected ErrCustodyTransferFailed, got %v", err)
		}
		h.assertUnchanged(before, h.assetID)

		h.engine.SetRegistry(h.registry)
		if err := h.engine.FinalizeSale(h.buyer, h.assetID); err != nil {
			t.Fatalf("finalize with working registry: %v", err)
		}
	})

	t.Run("cancel", func(t *testing.T) {
		h := newHarness(t)
		h.list(h.assetID, milli(1_000), milli(10))
		h.deposit(h.assetID, milli(10))
		h.engine.SetRegistry(inertRegistry{h.registry})

		before := h.observe(h.assetID)
		if err := h.engine.CancelSale(h.seller, h.assetID); !errors.Is(err, escrow.ErrCustodyTransferFailed) {
			t.Fatalf("expected ErrCustodyTransferFailed, got %v", err)
		}
		h.assertUnchanged(before, h.assetID)
	})
}
