package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Payloads are carried JSON encoded in Transaction.Data. Addresses use the
// bech32 form and amounts are base-10 strings.

type PaymentPolicyPayload struct {
	Reject bool `json:"reject"`
}

type RegistryMintPayload struct {
	URI string `json:"uri"`
}

type RegistryApprovePayload struct {
	AssetID uint64 `json:"assetId"`
	Spender string `json:"spender"`
}

type RegistryTransferPayload struct {
	AssetID uint64 `json:"assetId"`
	From    string `json:"from"`
	To      string `json:"to"`
}

type EscrowListPayload struct {
	AssetID       uint64 `json:"assetId"`
	Buyer         string `json:"buyer"`
	PurchasePrice string `json:"purchasePrice"`
	EscrowAmount  string `json:"escrowAmount"`
}

type EscrowInspectPayload struct {
	AssetID uint64 `json:"assetId"`
	Passed  bool   `json:"passed"`
}

// EscrowAssetPayload addresses deposit, fund, approve, finalize and cancel.
type EscrowAssetPayload struct {
	AssetID uint64 `json:"assetId"`
}

// EncodePayload marshals v for use as Transaction.Data.
func EncodePayload(v any) ([]byte, error) {
	return json.Marshal(v)
}

// DecodePayload unmarshals tx data into v, rejecting unknown fields.
func DecodePayload(data []byte, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("transaction: missing payload")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("transaction: invalid payload: %w", err)
	}
	return nil
}
