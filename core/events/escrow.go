package events

import (
	"math/big"
	"strconv"

	"deedescrow/core/types"
)

const (
	TypeEscrowListed            = "escrow.listed"
	TypeEscrowEarnestDeposited  = "escrow.earnest_deposited"
	TypeEscrowLoanFunded        = "escrow.loan_funded"
	TypeEscrowInspectionUpdated = "escrow.inspection_updated"
	TypeEscrowSaleApproved      = "escrow.sale_approved"
	TypeEscrowSaleFinalized     = "escrow.sale_finalized"
	TypeEscrowSaleCancelled     = "escrow.sale_cancelled"
	TypeEscrowRefundDeferred    = "escrow.refund_deferred"
	TypeEscrowRefundClaimed     = "escrow.refund_claimed"
)

type EscrowListed struct {
	AssetID       uint64
	Seller        [20]byte
	Buyer         [20]byte
	PurchasePrice *big.Int
	EscrowAmount  *big.Int
}

func (EscrowListed) EventType() string { return TypeEscrowListed }

func (e EscrowListed) Event() *types.Event {
	return &types.Event{Type: TypeEscrowListed, Attributes: map[string]string{
		"assetId":       formatAssetID(e.AssetID),
		"seller":        FormatAddress(e.Seller),
		"buyer":         FormatAddress(e.Buyer),
		"purchasePrice": formatAmount(e.PurchasePrice),
		"escrowAmount":  formatAmount(e.EscrowAmount),
	}}
}

type EscrowEarnestDeposited struct {
	AssetID uint64
	Buyer   [20]byte
	Amount  *big.Int
	Held    *big.Int
}

func (EscrowEarnestDeposited) EventType() string { return TypeEscrowEarnestDeposited }

func (e EscrowEarnestDeposited) Event() *types.Event {
	return &types.Event{Type: TypeEscrowEarnestDeposited, Attributes: map[string]string{
		"assetId": formatAssetID(e.AssetID),
		"buyer":   FormatAddress(e.Buyer),
		"amount":  formatAmount(e.Amount),
		"held":    formatAmount(e.Held),
	}}
}

type EscrowLoanFunded struct {
	AssetID uint64
	Lender  [20]byte
	Amount  *big.Int
	Held    *big.Int
}

func (EscrowLoanFunded) EventType() string { return TypeEscrowLoanFunded }

func (e EscrowLoanFunded) Event() *types.Event {
	return &types.Event{Type: TypeEscrowLoanFunded, Attributes: map[string]string{
		"assetId": formatAssetID(e.AssetID),
		"lender":  FormatAddress(e.Lender),
		"amount":  formatAmount(e.Amount),
		"held":    formatAmount(e.Held),
	}}
}

type EscrowInspectionUpdated struct {
	AssetID   uint64
	Inspector [20]byte
	Passed    bool
}

func (EscrowInspectionUpdated) EventType() string { return TypeEscrowInspectionUpdated }

func (e EscrowInspectionUpdated) Event() *types.Event {
	return &types.Event{Type: TypeEscrowInspectionUpdated, Attributes: map[string]string{
		"assetId":   formatAssetID(e.AssetID),
		"inspector": FormatAddress(e.Inspector),
		"passed":    strconv.FormatBool(e.Passed),
	}}
}

type EscrowSaleApproved struct {
	AssetID  uint64
	Approver [20]byte
}

func (EscrowSaleApproved) EventType() string { return TypeEscrowSaleApproved }

func (e EscrowSaleApproved) Event() *types.Event {
	return &types.Event{Type: TypeEscrowSaleApproved, Attributes: map[string]string{
		"assetId":  formatAssetID(e.AssetID),
		"approver": FormatAddress(e.Approver),
	}}
}

type EscrowSaleFinalized struct {
	AssetID uint64
	Seller  [20]byte
	Buyer   [20]byte
	Amount  *big.Int
}

func (EscrowSaleFinalized) EventType() string { return TypeEscrowSaleFinalized }

func (e EscrowSaleFinalized) Event() *types.Event {
	return &types.Event{Type: TypeEscrowSaleFinalized, Attributes: map[string]string{
		"assetId": formatAssetID(e.AssetID),
		"seller":  FormatAddress(e.Seller),
		"buyer":   FormatAddress(e.Buyer),
		"amount":  formatAmount(e.Amount),
	}}
}

// EscrowSaleCancelled reports where the ledger went: Amount is the earnest
// part paid to Refundee and LoanRefund the financing returned to Lender.
type EscrowSaleCancelled struct {
	AssetID     uint64
	CancelledBy [20]byte
	Refundee    [20]byte
	Amount      *big.Int
	Lender      [20]byte
	LoanRefund  *big.Int
}

func (EscrowSaleCancelled) EventType() string { return TypeEscrowSaleCancelled }

func (e EscrowSaleCancelled) Event() *types.Event {
	return &types.Event{Type: TypeEscrowSaleCancelled, Attributes: map[string]string{
		"assetId":     formatAssetID(e.AssetID),
		"cancelledBy": FormatAddress(e.CancelledBy),
		"refundee":    FormatAddress(e.Refundee),
		"amount":      formatAmount(e.Amount),
		"lender":      FormatAddress(e.Lender),
		"loanRefund":  formatAmount(e.LoanRefund),
	}}
}

// EscrowRefundDeferred is emitted when a cancellation refund could not be
// paid because the recipient rejects payments. The amount stays claimable.
type EscrowRefundDeferred struct {
	AssetID uint64
	Account [20]byte
	Amount  *big.Int
}

func (EscrowRefundDeferred) EventType() string { return TypeEscrowRefundDeferred }

func (e EscrowRefundDeferred) Event() *types.Event {
	return &types.Event{Type: TypeEscrowRefundDeferred, Attributes: map[string]string{
		"assetId": formatAssetID(e.AssetID),
		"account": FormatAddress(e.Account),
		"amount":  formatAmount(e.Amount),
	}}
}

type EscrowRefundClaimed struct {
	AssetID uint64
	Account [20]byte
	Amount  *big.Int
}

func (EscrowRefundClaimed) EventType() string { return TypeEscrowRefundClaimed }

func (e EscrowRefundClaimed) Event() *types.Event {
	return &types.Event{Type: TypeEscrowRefundClaimed, Attributes: map[string]string{
		"assetId": formatAssetID(e.AssetID),
		"account": FormatAddress(e.Account),
		"amount":  formatAmount(e.Amount),
	}}
}
