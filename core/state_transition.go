package core

import (
	"errors"
	"fmt"
	"math/big"

	"deedescrow/core/events"
	chainstate "deedescrow/core/state"
	"deedescrow/core/types"
	"deedescrow/crypto"
	"deedescrow/native/bank"
	"deedescrow/native/common"
	"deedescrow/native/escrow"
	"deedescrow/native/registry"
	"deedescrow/storage"
)

// ProcessorConfig carries the parameters fixed for the node's lifetime.
type ProcessorConfig struct {
	ChainID       uint64
	Roles         escrow.Roles
	DepositPolicy escrow.DepositPolicy
	Pauses        common.PauseView
	Now           func() int64
}

// StateProcessor applies one transaction inside its own journal. Nothing
// reaches the database until Commit; Discard drops every write and event.
type StateProcessor struct {
	cfg      ProcessorConfig
	journal  *storage.Journal
	manager  *chainstate.Manager
	recorder *events.Recorder

	Bank     *bank.Ledger
	Registry *registry.Registry
	Escrow   *escrow.Engine
}

// NewStateProcessor wires the native modules over a fresh journal on db.
func NewStateProcessor(db storage.Database, cfg ProcessorConfig) *StateProcessor {
	journal := storage.NewJournal(db)
	manager := chainstate.NewManager(journal)
	recorder := &events.Recorder{}

	ledger := bank.NewLedger(manager)
	ledger.SetEmitter(recorder)
	ledger.SetPauses(cfg.Pauses)

	reg := registry.New(manager)
	reg.SetEmitter(recorder)
	reg.SetPauses(cfg.Pauses)

	engine := escrow.NewEngine(cfg.Roles)
	engine.SetState(manager)
	engine.SetRegistry(reg)
	engine.SetBank(ledger)
	engine.SetEmitter(recorder)
	engine.SetPauses(cfg.Pauses)
	engine.SetDepositPolicy(cfg.DepositPolicy)
	if cfg.Now != nil {
		engine.SetNowFunc(cfg.Now)
	}

	return &StateProcessor{
		cfg:      cfg,
		journal:  journal,
		manager:  manager,
		recorder: recorder,
		Bank:     ledger,
		Registry: reg,
		Escrow:   engine,
	}
}

// Manager exposes the typed state view of the pending journal.
func (sp *StateProcessor) Manager() *chainstate.Manager { return sp.manager }

// Events returns the events recorded since the last commit or discard.
func (sp *StateProcessor) Events() []types.Event { return sp.recorder.Events() }

// Commit flushes the journal to the database.
func (sp *StateProcessor) Commit() error {
	if err := sp.journal.Commit(); err != nil {
		return err
	}
	sp.recorder.Reset()
	return nil
}

// Discard drops all pending writes and events.
func (sp *StateProcessor) Discard() {
	sp.journal.Discard()
	sp.recorder.Reset()
}

// ApplyTransaction validates the envelope, dispatches to the owning module and
// advances the sender nonce. It returns the recovered sender.
func (sp *StateProcessor) ApplyTransaction(tx *types.Transaction) ([20]byte, error) {
	var sender [20]byte
	if tx == nil {
		return sender, fmt.Errorf("%w: nil transaction", ErrInvalidPayload)
	}
	if tx.ChainID != sp.cfg.ChainID {
		return sender, fmt.Errorf("%w: expected %d, got %d", ErrInvalidChainID, sp.cfg.ChainID, tx.ChainID)
	}
	sender, err := tx.From()
	if err != nil {
		return sender, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if err := types.CheckAmount(tx.Value); err != nil {
		return sender, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if !tx.Type.Payable() && tx.Value != nil && tx.Value.Sign() != 0 {
		return sender, fmt.Errorf("%w: %s", ErrUnexpectedValue, tx.Type)
	}
	account, err := sp.manager.GetAccount(sender)
	if err != nil {
		return sender, err
	}
	if tx.Nonce != account.Nonce {
		return sender, fmt.Errorf("%w: expected %d, got %d", ErrInvalidNonce, account.Nonce, tx.Nonce)
	}

	if err := sp.dispatch(sender, tx); err != nil {
		return sender, err
	}

	// Reload: the module may have changed the sender's balance.
	account, err = sp.manager.GetAccount(sender)
	if err != nil {
		return sender, err
	}
	account.Nonce++
	if err := sp.manager.PutAccount(sender, account); err != nil {
		return sender, err
	}
	seq, err := sp.manager.Sequence()
	if err != nil {
		return sender, err
	}
	return sender, sp.manager.SetSequence(seq + 1)
}

func (sp *StateProcessor) dispatch(sender [20]byte, tx *types.Transaction) error {
	switch tx.Type {
	case types.TxTypeTransfer:
		return sp.applyTransfer(sender, tx)
	case types.TxTypeSetPaymentPolicy:
		var payload types.PaymentPolicyPayload
		if err := decodePayload(tx, &payload); err != nil {
			return err
		}
		return sp.Bank.SetPaymentPolicy(sender, payload.Reject)
	case types.TxTypeRegistryMint:
		var payload types.RegistryMintPayload
		if err := decodePayload(tx, &payload); err != nil {
			return err
		}
		_, err := sp.Registry.Mint(sender, payload.URI)
		return err
	case types.TxTypeRegistryApprove:
		return sp.applyRegistryApprove(sender, tx)
	case types.TxTypeRegistryTransfer:
		return sp.applyRegistryTransfer(sender, tx)
	case types.TxTypeEscrowList:
		return sp.applyEscrowList(sender, tx)
	case types.TxTypeEscrowDeposit:
		payload, err := decodeAssetPayload(tx)
		if err != nil {
			return err
		}
		return sp.Escrow.DepositEarnest(sender, payload.AssetID, tx.Amount())
	case types.TxTypeEscrowFundLoan:
		payload, err := decodeAssetPayload(tx)
		if err != nil {
			return err
		}
		return sp.Escrow.FundLoan(sender, payload.AssetID, tx.Amount())
	case types.TxTypeEscrowInspect:
		var payload types.EscrowInspectPayload
		if err := decodePayload(tx, &payload); err != nil {
			return err
		}
		return sp.Escrow.UpdateInspectionStatus(sender, payload.AssetID, payload.Passed)
	case types.TxTypeEscrowApprove:
		payload, err := decodeAssetPayload(tx)
		if err != nil {
			return err
		}
		return sp.Escrow.ApproveSale(sender, payload.AssetID)
	case types.TxTypeEscrowFinalize:
		payload, err := decodeAssetPayload(tx)
		if err != nil {
			return err
		}
		return sp.Escrow.FinalizeSale(sender, payload.AssetID)
	case types.TxTypeEscrowCancel:
		payload, err := decodeAssetPayload(tx)
		if err != nil {
			return err
		}
		return sp.Escrow.CancelSale(sender, payload.AssetID)
	case types.TxTypeEscrowClaimRefund:
		payload, err := decodeAssetPayload(tx)
		if err != nil {
			return err
		}
		return sp.Escrow.ClaimRefund(sender, payload.AssetID)
	}
	return fmt.Errorf("%w: %d", ErrUnknownTxType, tx.Type)
}

func decodePayload(tx *types.Transaction, out interface{}) error {
	if err := types.DecodePayload(tx.Data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

func decodeAssetPayload(tx *types.Transaction) (*types.EscrowAssetPayload, error) {
	payload := new(types.EscrowAssetPayload)
	if err := decodePayload(tx, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func parseAddress(raw string) ([20]byte, error) {
	addr, err := crypto.ParseAddress(raw)
	if err != nil {
		return addr, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return addr, nil
}

// applyTransfer refuses value addressed to the escrow account: every inflow
// there must be attributed to a listing ledger.
func (sp *StateProcessor) applyTransfer(sender [20]byte, tx *types.Transaction) error {
	to, err := tx.Recipient()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if to == sp.Escrow.Address() {
		return escrow.ErrUnattributedDeposit
	}
	return sp.Bank.Transfer(sender, to, tx.Amount())
}

func (sp *StateProcessor) applyRegistryApprove(sender [20]byte, tx *types.Transaction) error {
	var payload types.RegistryApprovePayload
	if err := decodePayload(tx, &payload); err != nil {
		return err
	}
	var spender [20]byte
	if payload.Spender != "" {
		parsed, err := parseAddress(payload.Spender)
		if err != nil {
			return err
		}
		spender = parsed
	}
	return sp.Registry.Approve(sender, spender, payload.AssetID)
}

func (sp *StateProcessor) applyRegistryTransfer(sender [20]byte, tx *types.Transaction) error {
	var payload types.RegistryTransferPayload
	if err := decodePayload(tx, &payload); err != nil {
		return err
	}
	from := sender
	if payload.From != "" {
		parsed, err := parseAddress(payload.From)
		if err != nil {
			return err
		}
		from = parsed
	}
	to, err := parseAddress(payload.To)
	if err != nil {
		return err
	}
	if to == sp.Escrow.Address() {
		return escrow.ErrUnattributedDeposit
	}
	return sp.Registry.TransferFrom(sender, from, to, payload.AssetID)
}

func (sp *StateProcessor) applyEscrowList(sender [20]byte, tx *types.Transaction) error {
	var payload types.EscrowListPayload
	if err := decodePayload(tx, &payload); err != nil {
		return err
	}
	buyer, err := parseAddress(payload.Buyer)
	if err != nil {
		return err
	}
	price, err := parseListingAmount(payload.PurchasePrice)
	if err != nil {
		return err
	}
	deposit := big.NewInt(0)
	if payload.EscrowAmount != "" {
		if deposit, err = parseListingAmount(payload.EscrowAmount); err != nil {
			return err
		}
	}
	_, err = sp.Escrow.List(sender, payload.AssetID, price, deposit, buyer)
	return err
}

func parseListingAmount(raw string) (*big.Int, error) {
	amount, err := types.ParseAmount(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", escrow.ErrInvalidPrice, err)
	}
	return amount, nil
}

// errIsRevert reports whether err came from a rule rejection rather than a
// storage fault.
func errIsRevert(err error) bool {
	return ClassifyError(err) != Internal && !errors.Is(err, storage.ErrNotFound)
}
