package types

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// TxType defines the purpose of a transaction.
type TxType byte

const (
	TxTypeTransfer          TxType = 0x01 // Plain value transfer between accounts
	TxTypeSetPaymentPolicy  TxType = 0x02 // Toggle whether the sender accepts incoming payments
	TxTypeRegistryMint      TxType = 0x10
	TxTypeRegistryApprove   TxType = 0x11
	TxTypeRegistryTransfer  TxType = 0x12
	TxTypeEscrowList        TxType = 0x20
	TxTypeEscrowDeposit     TxType = 0x21 // Buyer earnest deposit, carries value
	TxTypeEscrowFundLoan    TxType = 0x22 // Lender contribution, carries value
	TxTypeEscrowInspect     TxType = 0x23
	TxTypeEscrowApprove     TxType = 0x24
	TxTypeEscrowFinalize    TxType = 0x25
	TxTypeEscrowCancel      TxType = 0x26
	TxTypeEscrowClaimRefund TxType = 0x27 // Collect a refund parked by a cancellation
)

var txTypeNames = map[TxType]string{
	TxTypeTransfer:          "transfer",
	TxTypeSetPaymentPolicy:  "set_payment_policy",
	TxTypeRegistryMint:      "registry_mint",
	TxTypeRegistryApprove:   "registry_approve",
	TxTypeRegistryTransfer:  "registry_transfer",
	TxTypeEscrowList:        "escrow_list",
	TxTypeEscrowDeposit:     "escrow_deposit",
	TxTypeEscrowFundLoan:    "escrow_fund_loan",
	TxTypeEscrowInspect:     "escrow_inspect",
	TxTypeEscrowApprove:     "escrow_approve",
	TxTypeEscrowFinalize:    "escrow_finalize",
	TxTypeEscrowCancel:      "escrow_cancel",
	TxTypeEscrowClaimRefund: "escrow_claim_refund",
}

// String returns the metric and log label for the type.
func (t TxType) String() string {
	if name, ok := txTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown_0x%02x", byte(t))
}

// Payable reports whether transactions of this type may carry value.
func (t TxType) Payable() bool {
	switch t {
	case TxTypeTransfer, TxTypeEscrowDeposit, TxTypeEscrowFundLoan:
		return true
	default:
		return false
	}
}

var ErrMissingSignature = errors.New("transaction: missing signature")

// Transaction is the signed envelope for every state change.
type Transaction struct {
	ChainID uint64   `json:"chainId"`
	Type    TxType   `json:"type"`
	Nonce   uint64   `json:"nonce"`
	To      []byte   `json:"to,omitempty"`
	Value   *big.Int `json:"value,omitempty"`
	Data    []byte   `json:"data,omitempty"`

	// Signatures
	R *big.Int `json:"r"`
	S *big.Int `json:"s"`
	V *big.Int `json:"v"`

	from *[20]byte
}

type signingPayload struct {
	ChainID uint64
	Type    uint8
	Nonce   uint64
	To      []byte
	Value   *big.Int
	Data    []byte
}

// Hash is the keccak256 digest of the RLP encoded unsigned fields.
func (tx *Transaction) Hash() ([]byte, error) {
	value := tx.Value
	if value == nil {
		value = new(big.Int)
	}
	if value.Sign() < 0 {
		return nil, errors.New("transaction: negative value")
	}
	encoded, err := rlp.EncodeToBytes(signingPayload{
		ChainID: tx.ChainID,
		Type:    uint8(tx.Type),
		Nonce:   tx.Nonce,
		To:      tx.To,
		Value:   value,
		Data:    tx.Data,
	})
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256(encoded), nil
}

func (tx *Transaction) Sign(privKey *ecdsa.PrivateKey) error {
	hash, err := tx.Hash()
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(hash, privKey)
	if err != nil {
		return err
	}
	tx.R = new(big.Int).SetBytes(sig[:32])
	tx.S = new(big.Int).SetBytes(sig[32:64])
	tx.V = new(big.Int).SetBytes([]byte{sig[64] + 27})
	tx.from = nil
	return nil
}

// From recovers the signer address.
func (tx *Transaction) From() ([20]byte, error) {
	if tx.from != nil {
		return *tx.from, nil
	}
	var addr [20]byte
	if tx.R == nil || tx.S == nil || tx.V == nil {
		return addr, ErrMissingSignature
	}
	if tx.R.BitLen() > 256 || tx.S.BitLen() > 256 {
		return addr, errors.New("transaction: malformed signature")
	}
	v := tx.V.Uint64()
	if !tx.V.IsUint64() || (v != 27 && v != 28) {
		return addr, errors.New("transaction: invalid recovery id")
	}
	hash, err := tx.Hash()
	if err != nil {
		return addr, err
	}
	sig := make([]byte, 65)
	tx.R.FillBytes(sig[:32])
	tx.S.FillBytes(sig[32:64])
	sig[64] = byte(v - 27)
	pubKey, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return addr, err
	}
	copy(addr[:], crypto.PubkeyToAddress(*pubKey).Bytes())
	tx.from = &addr
	return addr, nil
}

// Recipient returns To as a state address.
func (tx *Transaction) Recipient() ([20]byte, error) {
	var addr [20]byte
	if len(tx.To) != 20 {
		return addr, fmt.Errorf("transaction: recipient must be 20 bytes, got %d", len(tx.To))
	}
	copy(addr[:], tx.To)
	return addr, nil
}

// Amount returns a copy of Value, treating nil as zero.
func (tx *Transaction) Amount() *big.Int {
	if tx.Value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(tx.Value)
}
