package registry

import "errors"

var (
	ErrTokenNotFound      = errors.New("registry: token not found")
	ErrNotOwnerOrApproved = errors.New("registry: caller is not owner or approved")
	ErrInvalidRecipient   = errors.New("registry: invalid recipient")
	ErrWrongOwner         = errors.New("registry: from is not the current owner")
)

// Token is the persisted record of a single deed.
type Token struct {
	ID       uint64
	Owner    [20]byte
	Approved [20]byte
	URI      string
}

// Clone returns a copy of the token.
func (t *Token) Clone() *Token {
	if t == nil {
		return nil
	}
	out := *t
	return &out
}
