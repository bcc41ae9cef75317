package escrow

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"deedescrow/core/events"
	"deedescrow/crypto"
	"deedescrow/native/bank"
	"deedescrow/native/common"
)

type engineState interface {
	EscrowListingGet(assetID uint64) (*Listing, bool, error)
	EscrowListingPut(listing *Listing) error
	EscrowApprovalGet(assetID uint64, addr [20]byte) (bool, error)
	EscrowApprovalSet(assetID uint64, addr [20]byte) error
	EscrowApprovalsClear(assetID uint64) error
	EscrowHeldGet(assetID uint64) (*big.Int, error)
	EscrowHeldPut(assetID uint64, amount *big.Int) error
	EscrowLoanGet(assetID uint64) (*big.Int, error)
	EscrowLoanPut(assetID uint64, amount *big.Int) error
	EscrowRefundGet(assetID uint64, addr [20]byte) (*big.Int, error)
	EscrowRefundPut(assetID uint64, addr [20]byte, amount *big.Int) error
	Snapshot() int
	RevertToSnapshot(id int)
}

// AssetRegistry is the custody surface the engine drives.
type AssetRegistry interface {
	OwnerOf(id uint64) ([20]byte, error)
	GetApproved(id uint64) ([20]byte, error)
	TransferFrom(caller, from, to [20]byte, id uint64) error
}

// Bank moves native currency on behalf of the engine.
type Bank interface {
	Balance(addr [20]byte) (*big.Int, error)
	Transfer(from, to [20]byte, amount *big.Int) error
}

// ModuleAddress is the account that holds custody of listed assets and of
// every escrow ledger.
func ModuleAddress() [20]byte { return crypto.ModuleAddress(common.ModuleEscrow) }

// Engine runs the listing lifecycle: list, deposit, inspect, approve and
// finalize or cancel. Every operation checks all guards before it mutates
// anything, and cross-module calls run under a state snapshot that is
// reverted on failure.
type Engine struct {
	state    engineState
	registry AssetRegistry
	bank     Bank
	emitter  events.Emitter
	pauses   common.PauseView
	roles    Roles
	policy   DepositPolicy
	address  [20]byte
	nowFn    func() int64
}

// NewEngine creates an escrow engine for the given roles with a no-op emitter.
func NewEngine(roles Roles) *Engine {
	return &Engine{
		roles:   roles,
		policy:  DepositPolicy{Mode: DepositAny},
		address: ModuleAddress(),
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetRegistry configures the asset registry holding custody records.
func (e *Engine) SetRegistry(registry AssetRegistry) { e.registry = registry }

// SetBank configures the native currency ledger.
func (e *Engine) SetBank(bank Bank) { e.bank = bank }

func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

func (e *Engine) SetDepositPolicy(p DepositPolicy) {
	if p.Mode == "" {
		p.Mode = DepositAny
	}
	e.policy = p
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Roles returns the configured identities.
func (e *Engine) Roles() Roles { return e.roles }

// Address returns the custody account.
func (e *Engine) Address() [20]byte { return e.address }

func (e *Engine) emit(evt events.Event) {
	if e.emitter != nil {
		e.emitter.Emit(evt)
	}
}

func (e *Engine) ready() error {
	switch {
	case e == nil || e.state == nil:
		return errNilState
	case e.registry == nil:
		return errNilRegistry
	case e.bank == nil:
		return errNilBank
	}
	return nil
}

func (e *Engine) guardMutation() error {
	if err := e.ready(); err != nil {
		return err
	}
	return common.Guard(e.pauses, common.ModuleEscrow)
}

func (e *Engine) loadListing(assetID uint64) (*Listing, error) {
	listing, ok, err := e.state.EscrowListingGet(assetID)
	if err != nil {
		return nil, err
	}
	if !ok || listing == nil {
		return nil, fmt.Errorf("%w: asset %d", ErrNotListed, assetID)
	}
	return listing, nil
}

// loadActive returns the listing only while it accepts operations.
func (e *Engine) loadActive(assetID uint64) (*Listing, error) {
	listing, err := e.loadListing(assetID)
	if err != nil {
		return nil, err
	}
	if listing.Sold {
		return nil, fmt.Errorf("%w: asset %d", ErrAlreadySold, assetID)
	}
	if !listing.IsListed {
		return nil, fmt.Errorf("%w: asset %d", ErrNotListed, assetID)
	}
	return listing, nil
}

func (e *Engine) held(assetID uint64) (*big.Int, error) {
	amount, err := e.state.EscrowHeldGet(assetID)
	if err != nil {
		return nil, err
	}
	return cloneBigInt(amount), nil
}

// eventBuffer is implemented by emitters that can drop events recorded
// after a mark.
type eventBuffer interface {
	Len() int
	Truncate(n int)
}

// atomically runs fn under a state snapshot. If fn fails every write made
// inside it is reverted and the events it emitted are dropped.
func (e *Engine) atomically(fn func() error) error {
	snapshot := e.state.Snapshot()
	buffer, _ := e.emitter.(eventBuffer)
	mark := 0
	if buffer != nil {
		mark = buffer.Len()
	}
	if err := fn(); err != nil {
		e.state.RevertToSnapshot(snapshot)
		if buffer != nil {
			buffer.Truncate(mark)
		}
		return err
	}
	return nil
}

// moveCustody asks the registry to move the asset and then re-reads ownership
// to confirm the move took effect.
func (e *Engine) moveCustody(assetID uint64, from, to [20]byte) error {
	if err := e.registry.TransferFrom(e.address, from, to, assetID); err != nil {
		return fmt.Errorf("%w: %v", ErrCustodyTransferFailed, err)
	}
	owner, err := e.registry.OwnerOf(assetID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCustodyTransferFailed, err)
	}
	if owner != to {
		return fmt.Errorf("%w: owner is %s, expected %s", ErrCustodyTransferFailed,
			events.FormatAddress(owner), events.FormatAddress(to))
	}
	return nil
}

func (e *Engine) pay(to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if err := e.bank.Transfer(e.address, to, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}
	return nil
}

// List places assetID under escrow for buyer at the given amounts. The engine
// takes custody of the asset; the seller must own it and have approved the
// engine, unless the engine already holds it.
func (e *Engine) List(caller [20]byte, assetID uint64, purchasePrice, escrowAmount *big.Int, buyer [20]byte) (*Listing, error) {
	if err := e.guardMutation(); err != nil {
		return nil, err
	}
	if !e.roles.CanList(caller) {
		return nil, ErrUnauthorized
	}
	if purchasePrice == nil || purchasePrice.Sign() <= 0 {
		return nil, fmt.Errorf("%w: purchase price must be positive", ErrInvalidPrice)
	}
	if escrowAmount == nil {
		escrowAmount = big.NewInt(0)
	}
	if escrowAmount.Sign() < 0 {
		return nil, fmt.Errorf("%w: escrow amount must not be negative", ErrInvalidPrice)
	}
	if escrowAmount.Cmp(purchasePrice) > 0 {
		return nil, fmt.Errorf("%w: escrow amount %s exceeds purchase price %s", ErrInvalidPrice, escrowAmount, purchasePrice)
	}
	if buyer == ([20]byte{}) || buyer == e.address || buyer == caller {
		return nil, ErrInvalidBuyer
	}
	existing, ok, err := e.state.EscrowListingGet(assetID)
	if err != nil {
		return nil, err
	}
	if ok && existing != nil {
		if existing.Sold {
			return nil, fmt.Errorf("%w: asset %d", ErrAlreadySold, assetID)
		}
		if existing.IsListed {
			return nil, fmt.Errorf("%w: asset %d", ErrAlreadyListed, assetID)
		}
	}

	owner, err := e.registry.OwnerOf(assetID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotOwnerOrUnapproved, err)
	}
	if owner != e.address {
		if owner != caller {
			return nil, fmt.Errorf("%w: asset %d is held by %s", ErrNotOwnerOrUnapproved, assetID, events.FormatAddress(owner))
		}
		approved, err := e.registry.GetApproved(assetID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotOwnerOrUnapproved, err)
		}
		if approved != e.address {
			return nil, fmt.Errorf("%w: engine not approved for asset %d", ErrNotOwnerOrUnapproved, assetID)
		}
	}

	listing := &Listing{
		AssetID:       assetID,
		Seller:        caller,
		Buyer:         buyer,
		PurchasePrice: cloneBigInt(purchasePrice),
		EscrowAmount:  cloneBigInt(escrowAmount),
		IsListed:      true,
		ListedAt:      e.nowFn(),
	}
	err = e.atomically(func() error {
		if owner != e.address {
			if err := e.moveCustody(assetID, caller, e.address); err != nil {
				return err
			}
		}
		if err := e.state.EscrowApprovalsClear(assetID); err != nil {
			return err
		}
		return e.state.EscrowListingPut(listing)
	})
	if err != nil {
		return nil, err
	}
	e.emit(events.EscrowListed{
		AssetID:       assetID,
		Seller:        listing.Seller,
		Buyer:         listing.Buyer,
		PurchasePrice: cloneBigInt(listing.PurchasePrice),
		EscrowAmount:  cloneBigInt(listing.EscrowAmount),
	})
	return listing.Clone(), nil
}

// DepositEarnest moves amount from the listing's buyer into the asset's
// escrow ledger.
func (e *Engine) DepositEarnest(caller [20]byte, assetID uint64, amount *big.Int) error {
	if err := e.guardMutation(); err != nil {
		return err
	}
	listing, err := e.loadActive(assetID)
	if err != nil {
		return err
	}
	if !CanDeposit(listing, caller) {
		return ErrUnauthorized
	}
	if amount == nil {
		amount = big.NewInt(0)
	}
	if err := e.policy.Check(listing, amount); err != nil {
		return err
	}
	held, err := e.credit(caller, assetID, amount, false)
	if err != nil {
		return err
	}
	e.emit(events.EscrowEarnestDeposited{AssetID: assetID, Buyer: caller, Amount: cloneBigInt(amount), Held: held})
	return nil
}

// FundLoan moves the lender's financing into the asset's escrow ledger.
func (e *Engine) FundLoan(caller [20]byte, assetID uint64, amount *big.Int) error {
	if err := e.guardMutation(); err != nil {
		return err
	}
	if !e.roles.CanFundLoan(caller) {
		return ErrUnauthorized
	}
	if _, err := e.loadActive(assetID); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: loan amount must be positive", ErrInvalidDeposit)
	}
	held, err := e.credit(caller, assetID, amount, true)
	if err != nil {
		return err
	}
	e.emit(events.EscrowLoanFunded{AssetID: assetID, Lender: caller, Amount: cloneBigInt(amount), Held: held})
	return nil
}

// credit moves amount from an account into the asset's ledger. Lender
// contributions are also tracked in the loan ledger so a cancellation can
// return them to the lender.
func (e *Engine) credit(from [20]byte, assetID uint64, amount *big.Int, loan bool) (*big.Int, error) {
	current, err := e.held(assetID)
	if err != nil {
		return nil, err
	}
	next := new(big.Int).Add(current, amount)
	err = e.atomically(func() error {
		if amount.Sign() > 0 {
			if err := e.bank.Transfer(from, e.address, amount); err != nil {
				return err
			}
		}
		if loan {
			funded, err := e.state.EscrowLoanGet(assetID)
			if err != nil {
				return err
			}
			if err := e.state.EscrowLoanPut(assetID, new(big.Int).Add(funded, amount)); err != nil {
				return err
			}
		}
		return e.state.EscrowHeldPut(assetID, next)
	})
	if err != nil {
		return nil, err
	}
	return cloneBigInt(next), nil
}

// UpdateInspectionStatus records the inspector's verdict. It may be changed
// any number of times until the listing is finalized or cancelled.
func (e *Engine) UpdateInspectionStatus(caller [20]byte, assetID uint64, passed bool) error {
	if err := e.guardMutation(); err != nil {
		return err
	}
	if !e.roles.CanInspect(caller) {
		return ErrUnauthorized
	}
	listing, err := e.loadActive(assetID)
	if err != nil {
		return err
	}
	listing.InspectionPassed = passed
	if err := e.state.EscrowListingPut(listing); err != nil {
		return err
	}
	e.emit(events.EscrowInspectionUpdated{AssetID: assetID, Inspector: caller, Passed: passed})
	return nil
}

// ApproveSale records the caller's consent. Approvals from addresses other
// than the buyer, seller and lender are stored but do not gate finalization.
func (e *Engine) ApproveSale(caller [20]byte, assetID uint64) error {
	if err := e.guardMutation(); err != nil {
		return err
	}
	if _, err := e.loadActive(assetID); err != nil {
		return err
	}
	if err := e.state.EscrowApprovalSet(assetID, caller); err != nil {
		return err
	}
	e.emit(events.EscrowSaleApproved{AssetID: assetID, Approver: caller})
	return nil
}

// FinalizeSale swaps the asset for the escrowed funds. Anyone may trigger it;
// the inspection, approval and funding gates decide whether it succeeds. The
// asset moves to the buyer and the whole ledger for the asset is paid to the
// seller, or nothing changes.
func (e *Engine) FinalizeSale(caller [20]byte, assetID uint64) error {
	if err := e.guardMutation(); err != nil {
		return err
	}
	listing, err := e.loadActive(assetID)
	if err != nil {
		return err
	}
	if !listing.InspectionPassed {
		return fmt.Errorf("%w: asset %d", ErrNotInspected, assetID)
	}
	for i, approver := range e.roles.GatingApprovers(listing) {
		ok, err := e.state.EscrowApprovalGet(assetID, approver)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: missing %s approval", ErrNotApproved, gatingRoleNames[i])
		}
	}
	held, err := e.held(assetID)
	if err != nil {
		return err
	}
	if held.Cmp(listing.PurchasePrice) < 0 {
		return fmt.Errorf("%w: held %s, purchase price %s", ErrInsufficientEscrow, held, listing.PurchasePrice)
	}

	err = e.atomically(func() error {
		if err := e.moveCustody(assetID, e.address, listing.Buyer); err != nil {
			return err
		}
		if err := e.pay(listing.Seller, held); err != nil {
			return err
		}
		if err := e.clearLedger(assetID); err != nil {
			return err
		}
		listing.Sold = true
		listing.IsListed = false
		return e.state.EscrowListingPut(listing)
	})
	if err != nil {
		return err
	}
	e.emit(events.EscrowSaleFinalized{AssetID: assetID, Seller: listing.Seller, Buyer: listing.Buyer, Amount: held})
	return nil
}

// CancelSale unwinds an active listing. Lender financing always goes back to
// the lender. The earnest part of the ledger is refunded to the buyer while
// inspection has not passed and forwarded to the seller otherwise. The asset
// returns to the seller and the approval set is cleared. A refund whose
// recipient rejects payments is parked and can be collected with ClaimRefund.
func (e *Engine) CancelSale(caller [20]byte, assetID uint64) error {
	if err := e.guardMutation(); err != nil {
		return err
	}
	listing, err := e.loadActive(assetID)
	if err != nil {
		return err
	}
	if !e.roles.CanCancel(listing, caller) {
		return ErrUnauthorized
	}
	held, err := e.held(assetID)
	if err != nil {
		return err
	}
	loan, err := e.state.EscrowLoanGet(assetID)
	if err != nil {
		return err
	}
	if loan.Cmp(held) > 0 {
		loan = new(big.Int).Set(held)
	}
	earnest := new(big.Int).Sub(held, loan)
	refundee := listing.Buyer
	if listing.InspectionPassed {
		refundee = listing.Seller
	}
	owner, err := e.registry.OwnerOf(assetID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCustodyTransferFailed, err)
	}

	err = e.atomically(func() error {
		if err := e.refund(assetID, refundee, earnest); err != nil {
			return err
		}
		if err := e.refund(assetID, e.roles.Lender, loan); err != nil {
			return err
		}
		if owner == e.address {
			if err := e.moveCustody(assetID, e.address, listing.Seller); err != nil {
				return err
			}
		}
		if err := e.clearLedger(assetID); err != nil {
			return err
		}
		if err := e.state.EscrowApprovalsClear(assetID); err != nil {
			return err
		}
		listing.IsListed = false
		listing.Cancelled = true
		return e.state.EscrowListingPut(listing)
	})
	if err != nil {
		return err
	}
	e.emit(events.EscrowSaleCancelled{
		AssetID:     assetID,
		CancelledBy: caller,
		Refundee:    refundee,
		Amount:      earnest,
		Lender:      e.roles.Lender,
		LoanRefund:  cloneBigInt(loan),
	})
	return nil
}

// refund pays amount to addr, or parks it as a claimable refund when addr
// rejects payments so the cancellation itself cannot be blocked.
func (e *Engine) refund(assetID uint64, addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	err := e.bank.Transfer(e.address, addr, amount)
	if err == nil {
		return nil
	}
	if !errors.Is(err, bank.ErrPaymentRejected) {
		return fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}
	owed, err := e.state.EscrowRefundGet(assetID, addr)
	if err != nil {
		return err
	}
	if err := e.state.EscrowRefundPut(assetID, addr, new(big.Int).Add(owed, amount)); err != nil {
		return err
	}
	e.emit(events.EscrowRefundDeferred{AssetID: assetID, Account: addr, Amount: cloneBigInt(amount)})
	return nil
}

func (e *Engine) clearLedger(assetID uint64) error {
	if err := e.state.EscrowHeldPut(assetID, big.NewInt(0)); err != nil {
		return err
	}
	return e.state.EscrowLoanPut(assetID, big.NewInt(0))
}

// ClaimRefund pays out a refund parked by CancelSale for the caller.
func (e *Engine) ClaimRefund(caller [20]byte, assetID uint64) error {
	if err := e.guardMutation(); err != nil {
		return err
	}
	owed, err := e.state.EscrowRefundGet(assetID, caller)
	if err != nil {
		return err
	}
	if owed.Sign() == 0 {
		return fmt.Errorf("%w: asset %d", ErrNoRefund, assetID)
	}
	err = e.atomically(func() error {
		if err := e.pay(caller, owed); err != nil {
			return err
		}
		return e.state.EscrowRefundPut(assetID, caller, big.NewInt(0))
	})
	if err != nil {
		return err
	}
	e.emit(events.EscrowRefundClaimed{AssetID: assetID, Account: caller, Amount: cloneBigInt(owed)})
	return nil
}

// Listing returns the stored record for assetID, including sold and cancelled
// history.
func (e *Engine) Listing(assetID uint64) (*Listing, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	listing, err := e.loadListing(assetID)
	if err != nil {
		return nil, err
	}
	return listing.Clone(), nil
}

// Approval reports whether addr has approved the sale of assetID.
func (e *Engine) Approval(assetID uint64, addr [20]byte) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	return e.state.EscrowApprovalGet(assetID, addr)
}

// Balance returns the engine's total native balance across all ledgers.
func (e *Engine) Balance() (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.bank.Balance(e.address)
}

// HeldBalance returns the escrow ledger of a single asset.
func (e *Engine) HeldBalance(assetID uint64) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.held(assetID)
}

// LoanBalance returns the part of an asset's ledger funded by the lender.
func (e *Engine) LoanBalance(assetID uint64) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.state.EscrowLoanGet(assetID)
}

// PendingRefund returns the parked refund owed to addr for assetID.
func (e *Engine) PendingRefund(assetID uint64, addr [20]byte) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.state.EscrowRefundGet(assetID, addr)
}
