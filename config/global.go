package config

import (
	"log/slog"
	"time"

	"deedescrow/core"
	"deedescrow/core/types"
	"deedescrow/crypto"
	"deedescrow/native/common"
	"deedescrow/native/escrow"
	"deedescrow/observability/logging"
	"deedescrow/observability/otel"
)

// Runtime is the parsed form of Config consumed by the node.
type Runtime struct {
	Processor core.ProcessorConfig
	Genesis   core.Genesis
}

// Runtime converts the textual configuration into node parameters. Unlike
// Validate it requires every role to be set.
func (c *Config) Runtime() (*Runtime, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.Roles.Seller == "" || c.Roles.Inspector == "" || c.Roles.Lender == "" {
		return nil, ErrRolesNotConfigured
	}
	var (
		roles escrow.Roles
		err   error
	)
	if roles.Seller, err = crypto.ParseAddress(c.Roles.Seller); err != nil {
		return nil, err
	}
	if roles.Inspector, err = crypto.ParseAddress(c.Roles.Inspector); err != nil {
		return nil, err
	}
	if roles.Lender, err = crypto.ParseAddress(c.Roles.Lender); err != nil {
		return nil, err
	}
	mode, err := escrow.ParseDepositMode(c.Escrow.DepositMode)
	if err != nil {
		return nil, err
	}
	pauses := common.StaticPauses{}
	for _, module := range c.Escrow.Paused {
		pauses[module] = true
	}

	rt := &Runtime{
		Processor: core.ProcessorConfig{
			ChainID:       c.ChainID,
			Roles:         roles,
			DepositPolicy: escrow.DepositPolicy{Mode: mode},
			Pauses:        pauses,
		},
	}
	for _, acc := range c.Genesis.Accounts {
		addr, err := crypto.ParseAddress(acc.Address)
		if err != nil {
			return nil, err
		}
		balance, err := types.ParseAmount(acc.Balance)
		if err != nil {
			return nil, err
		}
		rt.Genesis.Accounts = append(rt.Genesis.Accounts, core.GenesisAccount{Address: addr, Balance: balance})
	}
	for _, asset := range c.Genesis.Assets {
		owner, err := crypto.ParseAddress(asset.Owner)
		if err != nil {
			return nil, err
		}
		rt.Genesis.Assets = append(rt.Genesis.Assets, core.GenesisAsset{
			Owner:         owner,
			URI:           asset.URI,
			ApproveEscrow: asset.ApproveEscrow,
		})
	}
	return rt, nil
}

// LoggingOptions maps the logging section onto the logger setup.
func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{
		Level:      logging.ParseLevel(c.Logging.Level),
		File:       c.Logging.File,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
	}
}

// TelemetryConfig maps the telemetry section onto the OTLP exporter setup.
func (c *Config) TelemetryConfig(service string) otel.Config {
	return otel.Config{
		ServiceName: service,
		Environment: c.Environment,
		Endpoint:    c.Telemetry.Endpoint,
		Insecure:    c.Telemetry.Insecure,
		Headers:     otel.ParseHeaders(c.Telemetry.Headers),
		Metrics:     c.Telemetry.Metrics,
		Traces:      c.Telemetry.Traces,
		SampleRatio: c.Telemetry.SampleRatio,
		ChainID:     c.ChainID,
	}
}

func seconds(v int) time.Duration { return time.Duration(v) * time.Second }

func (r RPC) ReadHeaderTimeoutDuration() time.Duration { return seconds(r.ReadHeaderTimeout) }
func (r RPC) ReadTimeoutDuration() time.Duration { return seconds(r.ReadTimeout) }
func (r RPC) WriteTimeoutDuration() time.Duration { return seconds(r.WriteTimeout) }
func (r RPC) IdleTimeoutDuration() time.Duration { return seconds(r.IdleTimeout) }

// LogAttrs summarises the configuration for the startup log line. Secrets are
// masked.
func (c *Config) LogAttrs(authToken string) []any {
	return []any{
		slog.Uint64("chain_id", c.ChainID),
		slog.String("data_dir", c.DataDir),
		slog.String("rpc_address", c.RPCAddress),
		slog.String("deposit_mode", c.Escrow.DepositMode),
		slog.Any("paused", c.Escrow.Paused),
		logging.MaskField("auth_token", authToken),
	}
}
