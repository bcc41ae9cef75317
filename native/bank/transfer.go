package bank

import (
	"errors"
	"fmt"
	"math/big"

	"deedescrow/core/events"
	"deedescrow/core/types"
	"deedescrow/native/common"
)

var (
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrPaymentRejected     = errors.New("bank: recipient rejects payments")
	ErrInvalidAmount       = errors.New("bank: amount must not be negative")
)

// State is the account storage the ledger mutates.
type State interface {
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, account *types.Account) error
}

// Ledger moves native currency between accounts.
type Ledger struct {
	state   State
	emitter events.Emitter
	pauses  common.PauseView
}

func NewLedger(state State) *Ledger {
	return &Ledger{state: state, emitter: events.NoopEmitter{}}
}

func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

func (l *Ledger) SetPauses(p common.PauseView) { l.pauses = p }

func (l *Ledger) account(addr [20]byte) (*types.Account, error) {
	if l == nil || l.state == nil {
		return nil, errors.New("bank: state not configured")
	}
	acc, err := l.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return types.NewAccount(), nil
	}
	if acc.Balance == nil {
		acc.Balance = new(big.Int)
	}
	return acc, nil
}

// Balance returns the spendable balance of addr.
func (l *Ledger) Balance(addr [20]byte) (*big.Int, error) {
	acc, err := l.account(addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(acc.Balance), nil
}

// Credit mints amount into addr. It is reserved for genesis allocation.
func (l *Ledger) Credit(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	acc, err := l.account(addr)
	if err != nil {
		return err
	}
	acc.Balance = new(big.Int).Add(acc.Balance, amount)
	return l.state.PutAccount(addr, acc)
}

// Transfer moves amount from one account to another. A zero amount is a no-op
// that still honours the recipient payment policy.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if err := common.Guard(l.pauses, common.ModuleBank); err != nil {
		return err
	}
	if amount == nil {
		amount = new(big.Int)
	}
	if amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	sender, err := l.account(from)
	if err != nil {
		return err
	}
	recipient, err := l.account(to)
	if err != nil {
		return err
	}
	if recipient.RejectPayments {
		return fmt.Errorf("%w: %s", ErrPaymentRejected, events.FormatAddress(to))
	}
	if sender.Balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, sender.Balance, amount)
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	sender.Balance = new(big.Int).Sub(sender.Balance, amount)
	if err := l.state.PutAccount(from, sender); err != nil {
		return err
	}
	recipient.Balance = new(big.Int).Add(recipient.Balance, amount)
	if err := l.state.PutAccount(to, recipient); err != nil {
		return err
	}
	l.emitter.Emit(events.ValueTransferred{From: from, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

// SetPaymentPolicy toggles whether addr accepts incoming transfers.
func (l *Ledger) SetPaymentPolicy(addr [20]byte, reject bool) error {
	acc, err := l.account(addr)
	if err != nil {
		return err
	}
	acc.RejectPayments = reject
	if err := l.state.PutAccount(addr, acc); err != nil {
		return err
	}
	l.emitter.Emit(events.PaymentPolicyChanged{Account: addr, Reject: reject})
	return nil
}
