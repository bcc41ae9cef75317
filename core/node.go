package core

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"deedescrow/core/types"
	"deedescrow/crypto"
	"deedescrow/native/escrow"
	"deedescrow/observability"
	"deedescrow/observability/metrics"
	"deedescrow/storage"
)

// ReceiptHandler consumes committed receipts, e.g. the event indexer.
type ReceiptHandler interface {
	HandleReceipt(ctx context.Context, receipt *types.Receipt) error
}

// Option customises a Node.
type Option func(*Node)

func WithLogger(logger *slog.Logger) Option {
	return func(n *Node) {
		if logger != nil {
			n.logger = logger
		}
	}
}

func WithReceiptHandler(h ReceiptHandler) Option {
	return func(n *Node) {
		if h != nil {
			n.handlers = append(n.handlers, h)
		}
	}
}

// WithNowFunc overrides the clock used for listing timestamps.
func WithNowFunc(now func() int64) Option {
	return func(n *Node) { n.cfg.Now = now }
}

// Node is the single writer over the state database. Transactions are applied
// one at a time in arrival order; each either commits fully or leaves no
// trace. Reads run concurrently against committed state.
type Node struct {
	mu       sync.RWMutex
	db       storage.Database
	cfg      ProcessorConfig
	logger   *slog.Logger
	handlers []ReceiptHandler
	tracer   trace.Tracer
}

func NewNode(db storage.Database, cfg ProcessorConfig, opts ...Option) (*Node, error) {
	if db == nil {
		return nil, errors.New("core: database required")
	}
	if err := cfg.Roles.Validate(); err != nil {
		return nil, err
	}
	if cfg.DepositPolicy.Mode == "" {
		cfg.DepositPolicy.Mode = escrow.DepositAny
	}
	n := &Node{
		db:     db,
		cfg:    cfg,
		logger: slog.Default(),
		tracer: otel.Tracer("deedescrow/core"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

func (n *Node) ChainID() uint64 { return n.cfg.ChainID }

func (n *Node) Roles() escrow.Roles { return n.cfg.Roles }

// EscrowAddress is the custody account of the escrow engine.
func (n *Node) EscrowAddress() [20]byte { return escrow.ModuleAddress() }

func (n *Node) newProcessor() *StateProcessor {
	return NewStateProcessor(n.db, n.cfg)
}

// ApplyGenesis writes the opening allocations once. Later calls are no-ops.
func (n *Node) ApplyGenesis(ctx context.Context, genesis Genesis) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	sp := n.newProcessor()
	applied, err := sp.Manager().GenesisApplied()
	if err != nil {
		return err
	}
	if applied {
		return nil
	}
	for _, acc := range genesis.Accounts {
		if err := sp.Bank.Credit(acc.Address, acc.Balance); err != nil {
			sp.Discard()
			return fmt.Errorf("genesis account %s: %w", crypto.FromArray(acc.Address), err)
		}
	}
	for i, asset := range genesis.Assets {
		id, err := sp.Registry.Mint(asset.Owner, asset.URI)
		if err != nil {
			sp.Discard()
			return fmt.Errorf("genesis asset %d: %w", i, err)
		}
		if asset.ApproveEscrow {
			if err := sp.Registry.Approve(asset.Owner, sp.Escrow.Address(), id); err != nil {
				sp.Discard()
				return fmt.Errorf("genesis asset %d approval: %w", i, err)
			}
		}
	}
	if err := sp.Manager().MarkGenesisApplied(); err != nil {
		sp.Discard()
		return err
	}
	receipt := &types.Receipt{TxHash: "genesis", Type: "genesis", Events: sp.Events()}
	if err := sp.Commit(); err != nil {
		return fmt.Errorf("commit genesis: %w", err)
	}
	n.logger.Info("genesis applied",
		slog.Int("accounts", len(genesis.Accounts)),
		slog.Int("assets", len(genesis.Assets)))
	n.publish(ctx, receipt)
	return nil
}

// SubmitTransaction applies tx and returns its receipt. A rejected
// transaction changes nothing and produces no events.
func (n *Node) SubmitTransaction(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if tx == nil {
		return nil, fmt.Errorf("%w: nil transaction", ErrInvalidPayload)
	}
	ctx, span := n.tracer.Start(ctx, "core.SubmitTransaction",
		trace.WithAttributes(attribute.String("tx.type", tx.Type.String())))
	defer span.End()

	start := time.Now()
	receipt, err := n.apply(tx)
	reason := ""
	if err != nil {
		reason = ClassifyError(err).Name
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
	}
	metrics.Escrow().ObserveTransaction(tx.Type.String(), reason, time.Since(start))
	if err != nil {
		level := slog.LevelWarn
		if !errIsRevert(err) {
			level = slog.LevelError
		}
		n.logger.Log(ctx, level, "transaction rejected",
			slog.String("type", tx.Type.String()),
			slog.String("reason", reason),
			slog.Any("error", err))
		return nil, err
	}
	span.SetAttributes(attribute.Int64("tx.sequence", int64(receipt.Sequence)))
	n.logger.Info("transaction committed",
		slog.String("tx_hash", receipt.TxHash),
		slog.String("type", receipt.Type),
		slog.String("from", receipt.From),
		slog.Uint64("sequence", receipt.Sequence),
		slog.Int("events", len(receipt.Events)))
	n.publish(ctx, receipt)
	return receipt, nil
}

func (n *Node) apply(tx *types.Transaction) (*types.Receipt, error) {
	hash, err := tx.Hash()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	sp := n.newProcessor()
	sender, err := sp.ApplyTransaction(tx)
	if err != nil {
		sp.Discard()
		return nil, err
	}
	seq, err := sp.Manager().Sequence()
	if err != nil {
		sp.Discard()
		return nil, err
	}
	custody, err := sp.Bank.Balance(sp.Escrow.Address())
	if err != nil {
		sp.Discard()
		return nil, err
	}
	receipt := &types.Receipt{
		TxHash:   "0x" + hex.EncodeToString(hash),
		Sequence: seq,
		Type:     tx.Type.String(),
		From:     crypto.FromArray(sender).String(),
		Events:   sp.Events(),
	}
	if err := sp.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	metrics.Escrow().SetSequence(seq)
	metrics.Escrow().SetCustodyBalance(custody)
	return receipt, nil
}

// publish fans a committed receipt out to the registered handlers. Handler
// failures are logged; the state change is already durable.
func (n *Node) publish(ctx context.Context, receipt *types.Receipt) {
	for _, evt := range receipt.Events {
		observability.Events().RecordEvent(evt.Type)
	}
	for _, h := range n.handlers {
		if err := h.HandleReceipt(ctx, receipt); err != nil {
			n.logger.Error("receipt handler failed",
				slog.String("tx_hash", receipt.TxHash),
				slog.Any("error", err))
		}
	}
}

// view runs fn against committed state under the read lock.
func (n *Node) view(fn func(sp *StateProcessor) error) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return fn(n.newProcessor())
}

func (n *Node) Listing(assetID uint64) (listing *escrow.Listing, err error) {
	err = n.view(func(sp *StateProcessor) error {
		listing, err = sp.Escrow.Listing(assetID)
		return err
	})
	return listing, err
}

func (n *Node) Approval(assetID uint64, addr [20]byte) (ok bool, err error) {
	err = n.view(func(sp *StateProcessor) error {
		ok, err = sp.Escrow.Approval(assetID, addr)
		return err
	})
	return ok, err
}

// Approvers lists every recorded approver for assetID.
func (n *Node) Approvers(assetID uint64) (out [][20]byte, err error) {
	err = n.view(func(sp *StateProcessor) error {
		out, err = sp.Manager().EscrowApprovers(assetID)
		return err
	})
	return out, err
}

// EscrowBalance returns the escrow account's total balance.
func (n *Node) EscrowBalance() (bal *big.Int, err error) {
	err = n.view(func(sp *StateProcessor) error {
		bal, err = sp.Escrow.Balance()
		return err
	})
	return bal, err
}

func (n *Node) HeldBalance(assetID uint64) (bal *big.Int, err error) {
	err = n.view(func(sp *StateProcessor) error {
		bal, err = sp.Escrow.HeldBalance(assetID)
		return err
	})
	return bal, err
}

func (n *Node) LoanBalance(assetID uint64) (bal *big.Int, err error) {
	err = n.view(func(sp *StateProcessor) error {
		bal, err = sp.Escrow.LoanBalance(assetID)
		return err
	})
	return bal, err
}

// PendingRefund returns the refund a cancellation parked for addr because
// addr was rejecting payments at the time.
func (n *Node) PendingRefund(assetID uint64, addr [20]byte) (owed *big.Int, err error) {
	err = n.view(func(sp *StateProcessor) error {
		owed, err = sp.Escrow.PendingRefund(assetID, addr)
		return err
	})
	return owed, err
}

func (n *Node) OwnerOf(assetID uint64) (owner [20]byte, err error) {
	err = n.view(func(sp *StateProcessor) error {
		owner, err = sp.Registry.OwnerOf(assetID)
		return err
	})
	return owner, err
}

func (n *Node) GetApproved(assetID uint64) (spender [20]byte, err error) {
	err = n.view(func(sp *StateProcessor) error {
		spender, err = sp.Registry.GetApproved(assetID)
		return err
	})
	return spender, err
}

func (n *Node) TokenURI(assetID uint64) (uri string, err error) {
	err = n.view(func(sp *StateProcessor) error {
		uri, err = sp.Registry.TokenURI(assetID)
		return err
	})
	return uri, err
}

func (n *Node) TotalSupply() (supply uint64, err error) {
	err = n.view(func(sp *StateProcessor) error {
		supply, err = sp.Registry.TotalSupply()
		return err
	})
	return supply, err
}

func (n *Node) Account(addr [20]byte) (acc *types.Account, err error) {
	err = n.view(func(sp *StateProcessor) error {
		acc, err = sp.Manager().GetAccount(addr)
		return err
	})
	return acc, err
}

// Sequence returns the number of committed transactions.
func (n *Node) Sequence() (seq uint64, err error) {
	err = n.view(func(sp *StateProcessor) error {
		seq, err = sp.Manager().Sequence()
		return err
	})
	return seq, err
}

// BalanceOf returns how many registry assets owner holds.
func (n *Node) BalanceOf(owner [20]byte) (count uint64, err error) {
	err = n.view(func(sp *StateProcessor) error {
		count, err = sp.Registry.BalanceOf(owner)
		return err
	})
	return count, err
}
