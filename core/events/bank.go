package events

import (
	"math/big"

	"deedescrow/core/types"
)

const (
	// TypeValueTransferred is emitted for every native currency movement.
	TypeValueTransferred = "bank.transferred"
	// TypePaymentPolicyChanged is emitted when an account toggles incoming payments.
	TypePaymentPolicyChanged = "bank.payment_policy"
)

type ValueTransferred struct {
	From   [20]byte
	To     [20]byte
	Amount *big.Int
}

func (ValueTransferred) EventType() string { return TypeValueTransferred }

func (e ValueTransferred) Event() *types.Event {
	return &types.Event{Type: TypeValueTransferred, Attributes: map[string]string{
		"from":   FormatAddress(e.From),
		"to":     FormatAddress(e.To),
		"amount": formatAmount(e.Amount),
	}}
}

type PaymentPolicyChanged struct {
	Account [20]byte
	Reject  bool
}

func (PaymentPolicyChanged) EventType() string { return TypePaymentPolicyChanged }

func (e PaymentPolicyChanged) Event() *types.Event {
	reject := "false"
	if e.Reject {
		reject = "true"
	}
	return &types.Event{Type: TypePaymentPolicyChanged, Attributes: map[string]string{
		"account": FormatAddress(e.Account),
		"reject":  reject,
	}}
}
