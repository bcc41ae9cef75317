package core

import (
	"errors"

	"deedescrow/core/types"
	"deedescrow/native/bank"
	"deedescrow/native/common"
	"deedescrow/native/escrow"
	"deedescrow/native/registry"
)

var (
	ErrInvalidChainID   = errors.New("core: chain id mismatch")
	ErrInvalidNonce     = errors.New("core: invalid nonce")
	ErrInvalidSignature = errors.New("core: invalid signature")
	ErrUnexpectedValue  = errors.New("core: transaction type does not accept value")
	ErrUnknownTxType    = errors.New("core: unknown transaction type")
	ErrInvalidPayload   = errors.New("core: invalid payload")
)

// ErrorClass is the stable public identity of a failure.
type ErrorClass struct {
	Code int
	Name string
}

var errorClasses = []struct {
	err   error
	class ErrorClass
}{
	{escrow.ErrUnauthorized, ErrorClass{-32100, "Unauthorized"}},
	{escrow.ErrNotListed, ErrorClass{-32101, "NotListed"}},
	{escrow.ErrInvalidPrice, ErrorClass{-32102, "InvalidPrice"}},
	{escrow.ErrCustodyTransferFailed, ErrorClass{-32103, "CustodyTransferFailed"}},
	{escrow.ErrNotInspected, ErrorClass{-32104, "NotInspected"}},
	{escrow.ErrNotApproved, ErrorClass{-32105, "NotApproved"}},
	{escrow.ErrInsufficientEscrow, ErrorClass{-32106, "InsufficientEscrow"}},
	{escrow.ErrPaymentFailed, ErrorClass{-32107, "PaymentFailed"}},
	{escrow.ErrAlreadyListed, ErrorClass{-32108, "AlreadyListed"}},
	{escrow.ErrAlreadySold, ErrorClass{-32109, "AlreadySold"}},
	{escrow.ErrInvalidDeposit, ErrorClass{-32110, "InvalidDeposit"}},
	{escrow.ErrNotOwnerOrUnapproved, ErrorClass{-32111, "NotOwnerOrUnapproved"}},
	{escrow.ErrInvalidBuyer, ErrorClass{-32112, "InvalidBuyer"}},
	{escrow.ErrUnattributedDeposit, ErrorClass{-32113, "UnattributedDeposit"}},
	{common.ErrModulePaused, ErrorClass{-32114, "ModulePaused"}},
	{escrow.ErrNoRefund, ErrorClass{-32115, "NoRefund"}},
	{ErrInvalidSignature, ErrorClass{-32120, "InvalidSignature"}},
	{types.ErrMissingSignature, ErrorClass{-32120, "InvalidSignature"}},
	{ErrInvalidNonce, ErrorClass{-32121, "InvalidNonce"}},
	{ErrInvalidChainID, ErrorClass{-32122, "InvalidChainID"}},
	{bank.ErrInsufficientBalance, ErrorClass{-32123, "InsufficientBalance"}},
	{bank.ErrPaymentRejected, ErrorClass{-32124, "PaymentRejected"}},
	{bank.ErrInvalidAmount, ErrorClass{-32125, "InvalidAmount"}},
	{registry.ErrTokenNotFound, ErrorClass{-32126, "TokenNotFound"}},
	{registry.ErrNotOwnerOrApproved, ErrorClass{-32127, "NotOwnerOrApproved"}},
	{registry.ErrWrongOwner, ErrorClass{-32127, "NotOwnerOrApproved"}},
	{registry.ErrInvalidRecipient, ErrorClass{-32128, "InvalidRecipient"}},
	{ErrUnexpectedValue, ErrorClass{-32129, "UnexpectedValue"}},
	{ErrUnknownTxType, ErrorClass{-32130, "UnknownTxType"}},
	{ErrInvalidPayload, ErrorClass{-32131, "InvalidPayload"}},
}

// Internal is returned for failures outside the public taxonomy.
var Internal = ErrorClass{-32000, "Internal"}

// ClassifyError maps err onto its public class. Escrow errors are checked
// first so a payment failure wrapping a bank error keeps its escrow identity.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClass{}
	}
	for _, entry := range errorClasses {
		if errors.Is(err, entry.err) {
			return entry.class
		}
	}
	return Internal
}
