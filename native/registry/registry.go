package registry

import (
	"errors"
	"fmt"
	"strings"

	"deedescrow/core/events"
	"deedescrow/native/common"
)

// State is the storage surface consumed by the registry.
type State interface {
	RegistryGetToken(id uint64) (*Token, bool, error)
	RegistryPutToken(token *Token) error
	RegistrySupply() (uint64, error)
	RegistrySetSupply(supply uint64) error
	RegistryHoldings(owner [20]byte) (uint64, error)
	RegistrySetHoldings(owner [20]byte, count uint64) error
}

// Registry is a non-fungible asset ledger with single-token approvals.
// Identifiers are sequential and start at 1.
type Registry struct {
	state   State
	emitter events.Emitter
	pauses  common.PauseView
}

func New(state State) *Registry {
	return &Registry{state: state, emitter: events.NoopEmitter{}}
}

func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

func (r *Registry) SetPauses(p common.PauseView) { r.pauses = p }

func (r *Registry) ready() error {
	if r == nil || r.state == nil {
		return errors.New("registry: state not configured")
	}
	return nil
}

func (r *Registry) load(id uint64) (*Token, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	token, ok, err := r.state.RegistryGetToken(id)
	if err != nil {
		return nil, err
	}
	if !ok || token == nil {
		return nil, fmt.Errorf("%w: %d", ErrTokenNotFound, id)
	}
	return token, nil
}

// Mint creates a new asset owned by caller and returns its identifier.
func (r *Registry) Mint(caller [20]byte, uri string) (uint64, error) {
	if err := r.ready(); err != nil {
		return 0, err
	}
	if err := common.Guard(r.pauses, common.ModuleRegistry); err != nil {
		return 0, err
	}
	if caller == ([20]byte{}) {
		return 0, ErrInvalidRecipient
	}
	supply, err := r.state.RegistrySupply()
	if err != nil {
		return 0, err
	}
	id := supply + 1
	token := &Token{ID: id, Owner: caller, URI: strings.TrimSpace(uri)}
	if err := r.state.RegistryPutToken(token); err != nil {
		return 0, err
	}
	if err := r.state.RegistrySetSupply(id); err != nil {
		return 0, err
	}
	if err := r.adjustHoldings(caller, 1); err != nil {
		return 0, err
	}
	r.emitter.Emit(events.AssetMinted{AssetID: id, Owner: caller, URI: token.URI})
	return id, nil
}

// Approve grants spender a one-shot permission to move the token. Passing the
// zero address clears the approval.
func (r *Registry) Approve(caller, spender [20]byte, id uint64) error {
	if err := common.Guard(r.pauses, common.ModuleRegistry); err != nil {
		return err
	}
	token, err := r.load(id)
	if err != nil {
		return err
	}
	if token.Owner != caller {
		return ErrNotOwnerOrApproved
	}
	token.Approved = spender
	if err := r.state.RegistryPutToken(token); err != nil {
		return err
	}
	r.emitter.Emit(events.AssetApproved{AssetID: id, Owner: caller, Spender: spender})
	return nil
}

// GetApproved returns the approved spender or the zero address.
func (r *Registry) GetApproved(id uint64) ([20]byte, error) {
	token, err := r.load(id)
	if err != nil {
		return [20]byte{}, err
	}
	return token.Approved, nil
}

// OwnerOf returns the current owner of the token.
func (r *Registry) OwnerOf(id uint64) ([20]byte, error) {
	token, err := r.load(id)
	if err != nil {
		return [20]byte{}, err
	}
	return token.Owner, nil
}

// TokenURI returns the metadata pointer recorded at mint.
func (r *Registry) TokenURI(id uint64) (string, error) {
	token, err := r.load(id)
	if err != nil {
		return "", err
	}
	return token.URI, nil
}

func (r *Registry) TotalSupply() (uint64, error) {
	if err := r.ready(); err != nil {
		return 0, err
	}
	return r.state.RegistrySupply()
}

func (r *Registry) BalanceOf(owner [20]byte) (uint64, error) {
	if err := r.ready(); err != nil {
		return 0, err
	}
	return r.state.RegistryHoldings(owner)
}

// TransferFrom moves the token from its owner to to. The caller must be the
// owner or the approved spender; any approval is cleared by the move.
func (r *Registry) TransferFrom(caller, from, to [20]byte, id uint64) error {
	if err := common.Guard(r.pauses, common.ModuleRegistry); err != nil {
		return err
	}
	token, err := r.load(id)
	if err != nil {
		return err
	}
	if token.Owner != from {
		return ErrWrongOwner
	}
	if caller != from && (token.Approved == ([20]byte{}) || token.Approved != caller) {
		return ErrNotOwnerOrApproved
	}
	if to == ([20]byte{}) {
		return ErrInvalidRecipient
	}
	token.Owner = to
	token.Approved = [20]byte{}
	if err := r.state.RegistryPutToken(token); err != nil {
		return err
	}
	if from != to {
		if err := r.adjustHoldings(from, -1); err != nil {
			return err
		}
		if err := r.adjustHoldings(to, 1); err != nil {
			return err
		}
	}
	r.emitter.Emit(events.AssetTransferred{AssetID: id, From: from, To: to})
	return nil
}

func (r *Registry) adjustHoldings(owner [20]byte, delta int) error {
	count, err := r.state.RegistryHoldings(owner)
	if err != nil {
		return err
	}
	switch {
	case delta > 0:
		count += uint64(delta)
	case count > 0:
		count--
	}
	return r.state.RegistrySetHoldings(owner, count)
}
