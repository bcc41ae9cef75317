package config

import (
	"errors"
	"fmt"
	"strings"

	"deedescrow/core/types"
	"deedescrow/crypto"
	"deedescrow/native/common"
	"deedescrow/native/escrow"
)

var ErrRolesNotConfigured = errors.New("config: roles.Seller, roles.Inspector and roles.Lender must be set")

var knownModules = map[string]struct{}{
	common.ModuleBank:     {},
	common.ModuleRegistry: {},
	common.ModuleEscrow:   {},
}

// Validate checks value ranges and the syntax of every configured address and
// amount. Empty roles are accepted here; Runtime refuses them.
func (c *Config) Validate() error {
	if c.ChainID == 0 {
		return fmt.Errorf("ChainID must be positive")
	}
	if _, err := escrow.ParseDepositMode(c.Escrow.DepositMode); err != nil {
		return fmt.Errorf("escrow.DepositMode: %w", err)
	}
	for _, module := range c.Escrow.Paused {
		if _, ok := knownModules[strings.ToLower(strings.TrimSpace(module))]; !ok {
			return fmt.Errorf("escrow.Paused: unknown module %q", module)
		}
	}
	for name, raw := range map[string]string{
		"roles.Seller":    c.Roles.Seller,
		"roles.Inspector": c.Roles.Inspector,
		"roles.Lender":    c.Roles.Lender,
	} {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if _, err := crypto.ParseAddress(raw); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.RPC.RateLimitPerSec < 0 {
		return fmt.Errorf("rpc.RateLimitPerSec must not be negative")
	}
	if c.RPC.RateLimitBurst < 0 {
		return fmt.Errorf("rpc.RateLimitBurst must not be negative")
	}
	if c.RPC.MaxBodyBytes < 0 {
		return fmt.Errorf("rpc.MaxBodyBytes must not be negative")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.SampleRatio must be within [0,1]")
	}
	for i, acc := range c.Genesis.Accounts {
		if _, err := crypto.ParseAddress(acc.Address); err != nil {
			return fmt.Errorf("genesis.accounts[%d].Address: %w", i, err)
		}
		if _, err := types.ParseAmount(acc.Balance); err != nil {
			return fmt.Errorf("genesis.accounts[%d].Balance: %w", i, err)
		}
	}
	for i, asset := range c.Genesis.Assets {
		if _, err := crypto.ParseAddress(asset.Owner); err != nil {
			return fmt.Errorf("genesis.assets[%d].Owner: %w", i, err)
		}
	}
	return nil
}
