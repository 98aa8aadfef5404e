package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"swaplimit/router"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for limitd.
type Config struct {
	ListenAddress string         `yaml:"listen"`
	DatabasePath  string         `yaml:"database"`
	RPCURL        string         `yaml:"rpc_url"`
	Registry      RegistryConfig `yaml:"registry"`
	Chain         ChainConfig    `yaml:"chain"`
	Orders        OrdersConfig   `yaml:"orders"`
}

// RegistryConfig points at the account-registry service used for recipient
// resolution.
type RegistryConfig struct {
	BaseURL string   `yaml:"base_url"`
	Timeout Duration `yaml:"timeout"`
}

// ChainConfig pins the on-chain contracts the daemon talks to.
type ChainConfig struct {
	Router        string `yaml:"router"`
	Quoter        string `yaml:"quoter"`
	WrappedNative string `yaml:"wrapped_native"`
	Intermediate  string `yaml:"intermediate"`
	// DirectPathThreshold is a decimal amount in the smallest native unit.
	// Tradable amounts at or above it route through the direct pool.
	DirectPathThreshold string `yaml:"direct_path_threshold"`
}

// OrdersConfig tunes the order engine.
type OrdersConfig struct {
	Admin           string   `yaml:"admin"`
	Executor        string   `yaml:"executor"`
	PublicExecution bool     `yaml:"public_execution"`
	ExecutionFee    string   `yaml:"execution_fee"`
	MinOrderAmount  string   `yaml:"min_order_amount"`
	SlippagePercent float64  `yaml:"slippage_percent"`
	StrictQuotes    bool     `yaml:"strict_quotes"`
	FeeTier         uint32   `yaml:"fee_tier"`
	DefaultExpiry   Duration `yaml:"default_expiry"`
}

// Load reads configuration from the supplied path. The RPC endpoint may be
// overridden through SWAPLIMIT_RPC_URL so credentials stay out of the file.
func Load(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	if override := strings.TrimSpace(os.Getenv("SWAPLIMIT_RPC_URL")); override != "" {
		cfg.RPCURL = override
	}
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7080"
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "/var/data/limitd"
	}
	if cfg.Registry.Timeout.Duration == 0 {
		cfg.Registry.Timeout.Duration = 10 * time.Second
	}
	if cfg.Orders.SlippagePercent == 0 {
		cfg.Orders.SlippagePercent = router.DefaultSlippagePercent
	}
	if cfg.Orders.FeeTier == 0 {
		cfg.Orders.FeeTier = 3000
	}
	if cfg.Orders.DefaultExpiry.Duration == 0 {
		cfg.Orders.DefaultExpiry.Duration = 24 * time.Hour
	}
}

func validate(cfg Config) error {
	if strings.TrimSpace(cfg.RPCURL) == "" {
		return fmt.Errorf("rpc_url must be configured")
	}
	for field, value := range map[string]string{
		"chain.router":         cfg.Chain.Router,
		"chain.quoter":         cfg.Chain.Quoter,
		"chain.wrapped_native": cfg.Chain.WrappedNative,
		"orders.admin":         cfg.Orders.Admin,
	} {
		if !common.IsHexAddress(strings.TrimSpace(value)) {
			return fmt.Errorf("%s must be a hex address", field)
		}
	}
	if v := strings.TrimSpace(cfg.Chain.Intermediate); v != "" && !common.IsHexAddress(v) {
		return fmt.Errorf("chain.intermediate must be a hex address")
	}
	if v := strings.TrimSpace(cfg.Orders.Executor); v != "" && !common.IsHexAddress(v) {
		return fmt.Errorf("orders.executor must be a hex address")
	}
	if strings.TrimSpace(cfg.Orders.Executor) == "" && !cfg.Orders.PublicExecution {
		return fmt.Errorf("orders.executor required unless public_execution is enabled")
	}
	if _, err := parseAmount(cfg.Orders.ExecutionFee, false); err != nil {
		return fmt.Errorf("orders.execution_fee: %w", err)
	}
	if _, err := parseAmount(cfg.Orders.MinOrderAmount, true); err != nil {
		return fmt.Errorf("orders.min_order_amount: %w", err)
	}
	if cfg.Chain.DirectPathThreshold != "" {
		if _, err := parseAmount(cfg.Chain.DirectPathThreshold, false); err != nil {
			return fmt.Errorf("chain.direct_path_threshold: %w", err)
		}
	}
	if err := router.ValidateSlippage(cfg.Orders.SlippagePercent); err != nil {
		return fmt.Errorf("orders.slippage_percent: %w", err)
	}
	if cfg.Orders.FeeTier >= 1<<24 {
		return fmt.Errorf("orders.fee_tier must fit in 3 bytes")
	}
	return nil
}

func parseAmount(raw string, requirePositive bool) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal amount %q", raw)
	}
	if amount.Sign() < 0 || (requirePositive && amount.Sign() == 0) {
		return nil, fmt.Errorf("amount %q out of range", raw)
	}
	return amount, nil
}

// RouterAddress returns the parsed router contract address.
func (c ChainConfig) RouterAddress() common.Address {
	return common.HexToAddress(strings.TrimSpace(c.Router))
}

// QuoterAddress returns the parsed quoter contract address.
func (c ChainConfig) QuoterAddress() common.Address {
	return common.HexToAddress(strings.TrimSpace(c.Quoter))
}

// WrappedNativeAddress returns the parsed wrapped native token address.
func (c ChainConfig) WrappedNativeAddress() common.Address {
	return common.HexToAddress(strings.TrimSpace(c.WrappedNative))
}

// IntermediateAddress returns the optional multi-hop intermediate token.
func (c ChainConfig) IntermediateAddress() common.Address {
	if strings.TrimSpace(c.Intermediate) == "" {
		return common.Address{}
	}
	return common.HexToAddress(strings.TrimSpace(c.Intermediate))
}

// Threshold returns the direct-path switchover amount, nil when unset.
func (c ChainConfig) Threshold() *big.Int {
	if strings.TrimSpace(c.DirectPathThreshold) == "" {
		return nil
	}
	amount, err := parseAmount(c.DirectPathThreshold, false)
	if err != nil {
		return nil
	}
	return amount
}

// AdminAddress returns the parsed admin capability address.
func (c OrdersConfig) AdminAddress() common.Address {
	return common.HexToAddress(strings.TrimSpace(c.Admin))
}

// ExecutorAddress returns the parsed executor address, zero when unset.
func (c OrdersConfig) ExecutorAddress() common.Address {
	if strings.TrimSpace(c.Executor) == "" {
		return common.Address{}
	}
	return common.HexToAddress(strings.TrimSpace(c.Executor))
}

// Fee returns the per-execution fee.
func (c OrdersConfig) Fee() *big.Int {
	amount, err := parseAmount(c.ExecutionFee, false)
	if err != nil {
		return big.NewInt(0)
	}
	return amount
}

// MinAmount returns the smallest accepted tradable deposit.
func (c OrdersConfig) MinAmount() *big.Int {
	amount, err := parseAmount(c.MinOrderAmount, true)
	if err != nil {
		return big.NewInt(0)
	}
	return amount
}
