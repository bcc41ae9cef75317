package core

import "math/big"

// GenesisAccount allocates an opening balance.
type GenesisAccount struct {
	Address [20]byte
	Balance *big.Int
}

// GenesisAsset is minted to Owner when the node first starts. With
// ApproveEscrow set the owner also pre-approves the escrow account to take
// custody, so the asset can be listed straight away.
type GenesisAsset struct {
	Owner         [20]byte
	URI           string
	ApproveEscrow bool
}

type Genesis struct {
	Accounts []GenesisAccount
	Assets   []GenesisAsset
}
