package rpc

import (
	"encoding/json"
	"math/big"

	"deedescrow/core/types"
	"deedescrow/crypto"
	"deedescrow/native/escrow"
)

type assetParams struct {
	AssetID uint64 `json:"assetId"`
}

type approvalParams struct {
	AssetID uint64 `json:"assetId"`
	Address string `json:"address"`
}

type balanceParams struct {
	AssetID *uint64 `json:"assetId,omitempty"`
}

type addressParams struct {
	Address string `json:"address"`
}

type listEventsParams struct {
	AssetID uint64 `json:"assetId,omitempty"`
	Type    string `json:"type,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	After   int64  `json:"after,omitempty"`
}

// ListingResult is the JSON view of a listing. Amounts are base-10 strings.
type ListingResult struct {
	AssetID          uint64   `json:"assetId"`
	Seller           string   `json:"seller"`
	Buyer            string   `json:"buyer"`
	PurchasePrice    string   `json:"purchasePrice"`
	EscrowAmount     string   `json:"escrowAmount"`
	InspectionPassed bool     `json:"inspectionPassed"`
	Sold             bool     `json:"sold"`
	IsListed         bool     `json:"isListed"`
	Cancelled        bool     `json:"cancelled"`
	Status           string   `json:"status"`
	ListedAt         int64    `json:"listedAt"`
	Held             string   `json:"held"`
	Loan             string   `json:"loan"`
	Approvals        []string `json:"approvals"`
}

type ApprovalResult struct {
	AssetID  uint64 `json:"assetId"`
	Address  string `json:"address"`
	Approved bool   `json:"approved"`
}

type BalanceResult struct {
	Address string  `json:"address"`
	Balance string  `json:"balance"`
	AssetID *uint64 `json:"assetId,omitempty"`
	Held    string  `json:"held,omitempty"`
}

// RefundResult reports a refund parked for an account that was rejecting
// payments when its listing was cancelled.
type RefundResult struct {
	AssetID uint64 `json:"assetId"`
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type RolesResult struct {
	Seller    string `json:"seller"`
	Inspector string `json:"inspector"`
	Lender    string `json:"lender"`
	Escrow    string `json:"escrow"`
}

type AccountResult struct {
	Address        string `json:"address"`
	Balance        string `json:"balance"`
	Nonce          uint64 `json:"nonce"`
	RejectPayments bool   `json:"rejectPayments"`
	Assets         uint64 `json:"assets"`
}

type ChainInfoResult struct {
	ChainID  uint64 `json:"chainId"`
	Sequence uint64 `json:"sequence"`
}

func formatAddress(addr [20]byte) string { return crypto.FromArray(addr).String() }

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func listingResult(l *escrow.Listing, held, loan *big.Int, approvers [][20]byte) ListingResult {
	approvals := make([]string, 0, len(approvers))
	for _, addr := range approvers {
		approvals = append(approvals, formatAddress(addr))
	}
	return ListingResult{
		AssetID:          l.AssetID,
		Seller:           formatAddress(l.Seller),
		Buyer:            formatAddress(l.Buyer),
		PurchasePrice:    formatAmount(l.PurchasePrice),
		EscrowAmount:     formatAmount(l.EscrowAmount),
		InspectionPassed: l.InspectionPassed,
		Sold:             l.Sold,
		IsListed:         l.IsListed,
		Cancelled:        l.Cancelled,
		Status:           l.Status().String(),
		ListedAt:         l.ListedAt,
		Held:             formatAmount(held),
		Loan:             formatAmount(loan),
		Approvals:        approvals,
	}
}

func accountResult(addr [20]byte, acc *types.Account, assets uint64) AccountResult {
	return AccountResult{
		Address:        formatAddress(addr),
		Balance:        formatAmount(acc.Balance),
		Nonce:          acc.Nonce,
		RejectPayments: acc.RejectPayments,
		Assets:         assets,
	}
}

// decodeParams unmarshals the single object parameter of req into out.
func decodeParams(req *RPCRequest, out interface{}) *failure {
	if len(req.Params) != 1 {
		return invalidParams("parameter object required", nil)
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return invalidParams("invalid parameter object", err.Error())
	}
	return nil
}

func decodeAddress(raw string) ([20]byte, *failure) {
	addr, err := crypto.ParseAddress(raw)
	if err != nil {
		return addr, invalidParams("invalid address", err.Error())
	}
	return addr, nil
}
