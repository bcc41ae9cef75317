package state

var (
	accountPrefix       = []byte("account/")
	listingPrefix       = []byte("escrow/listing/")
	approvalPrefix      = []byte("escrow/approval/")
	approverIndexPrefix = []byte("escrow/approvers/")
	heldPrefix          = []byte("escrow/held/")
	loanPrefix          = []byte("escrow/loan/")
	refundPrefix        = []byte("escrow/refund/")
	tokenPrefix         = []byte("registry/token/")
	holdingsPrefix      = []byte("registry/holdings/")
	supplyKeyBytes      = []byte("registry/supply")
	sequenceKeyBytes    = []byte("chain/sequence")
	genesisKeyBytes     = []byte("chain/genesis")
)
