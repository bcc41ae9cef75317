package escrow

import "errors"

var (
	ErrUnauthorized          = errors.New("escrow: unauthorized caller")
	ErrNotListed             = errors.New("escrow: asset not listed")
	ErrInvalidPrice          = errors.New("escrow: invalid price")
	ErrCustodyTransferFailed = errors.New("escrow: custody transfer failed")
	ErrNotOwnerOrUnapproved  = errors.New("escrow: engine cannot take custody of asset")
	ErrNotInspected          = errors.New("escrow: inspection not passed")
	ErrNotApproved           = errors.New("escrow: sale not approved by all parties")
	ErrInsufficientEscrow    = errors.New("escrow: insufficient escrow balance")
	ErrPaymentFailed         = errors.New("escrow: payment failed")
	ErrAlreadyListed         = errors.New("escrow: asset already listed")
	ErrAlreadySold           = errors.New("escrow: asset already sold")
	ErrInvalidDeposit        = errors.New("escrow: invalid deposit")
	ErrInvalidBuyer          = errors.New("escrow: invalid buyer")
	ErrUnattributedDeposit   = errors.New("escrow: direct transfers to the escrow account are not accepted")
	ErrNoRefund              = errors.New("escrow: no refund owed")

	errNilState    = errors.New("escrow engine: state not configured")
	errNilRegistry = errors.New("escrow engine: asset registry not configured")
	errNilBank     = errors.New("escrow engine: bank not configured")
)
