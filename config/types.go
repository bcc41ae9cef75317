package config

// Config is the on-disk configuration of escrowd. Keys follow the TOML
// layout written by Load when no file exists.
type Config struct {
	ChainID        uint64 `toml:"ChainID" yaml:"ChainID"`
	DataDir        string `toml:"DataDir" yaml:"DataDir"`
	RPCAddress     string `toml:"RPCAddress" yaml:"RPCAddress"`
	MetricsAddress string `toml:"MetricsAddress" yaml:"MetricsAddress"`
	Environment    string `toml:"Environment" yaml:"Environment"`

	Roles     Roles     `toml:"roles" yaml:"roles"`
	Escrow    Escrow    `toml:"escrow" yaml:"escrow"`
	RPC       RPC       `toml:"rpc" yaml:"rpc"`
	Logging   Logging   `toml:"logging" yaml:"logging"`
	Telemetry Telemetry `toml:"telemetry" yaml:"telemetry"`
	Genesis   Genesis   `toml:"genesis" yaml:"genesis"`
}

// Roles holds the bech32 (or 0x hex) addresses of the fixed escrow parties.
type Roles struct {
	Seller    string `toml:"Seller" yaml:"Seller"`
	Inspector string `toml:"Inspector" yaml:"Inspector"`
	Lender    string `toml:"Lender" yaml:"Lender"`
}

// Escrow tunes the escrow engine.
type Escrow struct {
	// DepositMode is one of any, minimum or exact.
	DepositMode string `toml:"DepositMode" yaml:"DepositMode"`
	// Paused lists modules (bank, registry, escrow) whose mutations are refused.
	Paused []string `toml:"Paused" yaml:"Paused"`
}

type RPC struct {
	// AuthToken guards tx_send when set. AuthTokenEnv names an environment
	// variable to read it from instead.
	AuthToken         string  `toml:"AuthToken" yaml:"AuthToken"`
	AuthTokenEnv      string  `toml:"AuthTokenEnv" yaml:"AuthTokenEnv"`
	RateLimitPerSec   float64 `toml:"RateLimitPerSec" yaml:"RateLimitPerSec"`
	RateLimitBurst    int     `toml:"RateLimitBurst" yaml:"RateLimitBurst"`
	ReadHeaderTimeout int     `toml:"ReadHeaderTimeout" yaml:"ReadHeaderTimeout"`
	ReadTimeout       int     `toml:"ReadTimeout" yaml:"ReadTimeout"`
	WriteTimeout      int     `toml:"WriteTimeout" yaml:"WriteTimeout"`
	IdleTimeout       int     `toml:"IdleTimeout" yaml:"IdleTimeout"`
	MaxBodyBytes      int64   `toml:"MaxBodyBytes" yaml:"MaxBodyBytes"`
	TrustProxyHeaders bool    `toml:"TrustProxyHeaders" yaml:"TrustProxyHeaders"`
}

type Logging struct {
	Level      string `toml:"Level" yaml:"Level"`
	File       string `toml:"File" yaml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups" yaml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays" yaml:"MaxAgeDays"`
}

type Telemetry struct {
	Endpoint    string  `toml:"Endpoint" yaml:"Endpoint"`
	Insecure    bool    `toml:"Insecure" yaml:"Insecure"`
	Headers     string  `toml:"Headers" yaml:"Headers"`
	Traces      bool    `toml:"Traces" yaml:"Traces"`
	Metrics     bool    `toml:"Metrics" yaml:"Metrics"`
	SampleRatio float64 `toml:"SampleRatio" yaml:"SampleRatio"`
}

// Genesis seeds balances and assets on first start.
type Genesis struct {
	Accounts []GenesisAccount `toml:"accounts" yaml:"accounts"`
	Assets   []GenesisAsset   `toml:"assets" yaml:"assets"`
}

type GenesisAccount struct {
	Address string `toml:"Address" yaml:"Address"`
	// Balance is a base-10 amount in base units.
	Balance string `toml:"Balance" yaml:"Balance"`
}

type GenesisAsset struct {
	Owner         string `toml:"Owner" yaml:"Owner"`
	URI           string `toml:"URI" yaml:"URI"`
	ApproveEscrow bool   `toml:"ApproveEscrow" yaml:"ApproveEscrow"`
}
