package events

import "deedescrow/core/types"

const (
	TypeAssetMinted      = "registry.minted"
	TypeAssetApproved    = "registry.approved"
	TypeAssetTransferred = "registry.transferred"
)

type AssetMinted struct {
	AssetID uint64
	Owner   [20]byte
	URI     string
}

func (AssetMinted) EventType() string { return TypeAssetMinted }

func (e AssetMinted) Event() *types.Event {
	return &types.Event{Type: TypeAssetMinted, Attributes: map[string]string{
		"assetId": formatAssetID(e.AssetID),
		"owner":   FormatAddress(e.Owner),
		"uri":     e.URI,
	}}
}

// AssetApproved records a single-use transfer permission. A zero spender
// clears the approval.
type AssetApproved struct {
	AssetID uint64
	Owner   [20]byte
	Spender [20]byte
}

func (AssetApproved) EventType() string { return TypeAssetApproved }

func (e AssetApproved) Event() *types.Event {
	return &types.Event{Type: TypeAssetApproved, Attributes: map[string]string{
		"assetId": formatAssetID(e.AssetID),
		"owner":   FormatAddress(e.Owner),
		"spender": FormatAddress(e.Spender),
	}}
}

type AssetTransferred struct {
	AssetID uint64
	From    [20]byte
	To      [20]byte
}

func (AssetTransferred) EventType() string { return TypeAssetTransferred }

func (e AssetTransferred) Event() *types.Event {
	return &types.Event{Type: TypeAssetTransferred, Attributes: map[string]string{
		"assetId": formatAssetID(e.AssetID),
		"from":    FormatAddress(e.From),
		"to":      FormatAddress(e.To),
	}}
}
