package escrow

import (
	"fmt"
	"math/big"
	"strings"
)

// ListingStatus is the coarse lifecycle position of a listing. Inspection and
// deposits are tracked as independent flags on top of it.
type ListingStatus uint8

const (
	ListingUnlisted ListingStatus = iota
	ListingActive
	ListingSold
	ListingCancelled
)

func (s ListingStatus) String() string {
	switch s {
	case ListingActive:
		return "listed"
	case ListingSold:
		return "sold"
	case ListingCancelled:
		return "cancelled"
	default:
		return "unlisted"
	}
}

// Listing binds one asset to a seller, a designated buyer and the agreed
// amounts. Records are never deleted; sold and cancelled listings persist as
// history.
type Listing struct {
	AssetID          uint64
	Seller           [20]byte
	Buyer            [20]byte
	PurchasePrice    *big.Int
	EscrowAmount     *big.Int
	InspectionPassed bool
	Sold             bool
	IsListed         bool
	Cancelled        bool
	ListedAt         int64
}

// Clone returns a deep copy of the listing so callers can safely mutate
// the copy without affecting the stored instance.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	clone := *l
	clone.PurchasePrice = cloneBigInt(l.PurchasePrice)
	clone.EscrowAmount = cloneBigInt(l.EscrowAmount)
	return &clone
}

// Status derives the lifecycle position from the stored flags.
func (l *Listing) Status() ListingStatus {
	switch {
	case l == nil:
		return ListingUnlisted
	case l.Sold:
		return ListingSold
	case l.IsListed:
		return ListingActive
	case l.Cancelled:
		return ListingCancelled
	default:
		return ListingUnlisted
	}
}

// Validate checks the structural invariants of a stored listing.
func (l *Listing) Validate() error {
	if l == nil {
		return fmt.Errorf("escrow: nil listing")
	}
	if l.AssetID == 0 {
		return fmt.Errorf("escrow: asset id must be positive")
	}
	if l.PurchasePrice == nil || l.PurchasePrice.Sign() <= 0 {
		return fmt.Errorf("%w: purchase price must be positive", ErrInvalidPrice)
	}
	if l.EscrowAmount == nil || l.EscrowAmount.Sign() < 0 {
		return fmt.Errorf("%w: escrow amount must not be negative", ErrInvalidPrice)
	}
	if l.EscrowAmount.Cmp(l.PurchasePrice) > 0 {
		return fmt.Errorf("%w: escrow amount %s exceeds purchase price %s", ErrInvalidPrice, l.EscrowAmount, l.PurchasePrice)
	}
	if l.Sold && l.IsListed {
		return fmt.Errorf("escrow: listing %d is both sold and listed", l.AssetID)
	}
	return nil
}

// Roles are the fixed identities configured for the lifetime of an engine.
type Roles struct {
	Seller    [20]byte
	Inspector [20]byte
	Lender    [20]byte
}

// Validate ensures every role is configured.
func (r Roles) Validate() error {
	var zero [20]byte
	if r.Seller == zero {
		return fmt.Errorf("escrow: seller role not configured")
	}
	if r.Inspector == zero {
		return fmt.Errorf("escrow: inspector role not configured")
	}
	if r.Lender == zero {
		return fmt.Errorf("escrow: lender role not configured")
	}
	return nil
}

// DepositMode selects how earnest deposits are checked against the listing's
// escrow amount.
type DepositMode string

const (
	DepositAny     DepositMode = "any"
	DepositMinimum DepositMode = "minimum"
	DepositExact   DepositMode = "exact"
)

// ParseDepositMode normalises a configured mode. The empty string selects
// DepositAny.
func ParseDepositMode(raw string) (DepositMode, error) {
	switch mode := DepositMode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case "":
		return DepositAny, nil
	case DepositAny, DepositMinimum, DepositExact:
		return mode, nil
	default:
		return "", fmt.Errorf("escrow: unknown deposit mode %q", raw)
	}
}

// DepositPolicy validates a single earnest deposit.
type DepositPolicy struct {
	Mode DepositMode
}

// Check returns ErrInvalidDeposit when amount violates the policy for listing.
func (p DepositPolicy) Check(listing *Listing, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: amount must not be negative", ErrInvalidDeposit)
	}
	required := big.NewInt(0)
	if listing != nil && listing.EscrowAmount != nil {
		required = listing.EscrowAmount
	}
	switch p.Mode {
	case DepositMinimum:
		if amount.Cmp(required) < 0 {
			return fmt.Errorf("%w: deposit %s below escrow amount %s", ErrInvalidDeposit, amount, required)
		}
	case DepositExact:
		if amount.Cmp(required) != 0 {
			return fmt.Errorf("%w: deposit %s must equal escrow amount %s", ErrInvalidDeposit, amount, required)
		}
	}
	return nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
