// Package registry resolves account identifiers to their canonical on-chain
// addresses through the external account-registry service, with a
// deterministic alias fallback for accounts that never had an address bound.
package registry

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ResolutionSource tells which branch produced the address. The branches are
// not behaviorally equivalent: until a canonical address is bound, the alias
// is the only key controlling the destination of swapped funds, so callers
// must be able to inspect which one they got.
type ResolutionSource string

const (
	// SourceCanonical means the registry returned a bound address.
	SourceCanonical ResolutionSource = "canonical"
	// SourceAlias means the address was derived from the numeric account id.
	SourceAlias ResolutionSource = "alias"
)

// Resolution is the outcome of one lookup.
type Resolution struct {
	Account string
	Address common.Address
	Source  ResolutionSource
}

// Config defines the HTTP client settings for the account registry.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client queries the account registry.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient constructs a client with sane defaults.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, fmt.Errorf("registry: base url required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

type accountPayload struct {
	Account    string `json:"account"`
	EVMAddress string `json:"evm_address"`
	Alias      string `json:"alias"`
}

// Resolve maps an account identifier (shard.realm.num) to its on-chain
// address. The registry's bound address wins when present and non-zero;
// otherwise the deterministic alias derived from the numeric id is returned.
// Registry transport failures also fall back to the alias so the overall
// swap flow stays available; malformed account ids are errors.
func (c *Client) Resolve(ctx context.Context, accountID string) (Resolution, error) {
	alias, err := AliasAddress(accountID)
	if err != nil {
		return Resolution{}, err
	}
	fallback := Resolution{Account: accountID, Address: alias, Source: SourceAlias}

	payload, err := c.fetch(ctx, accountID)
	if err != nil {
		c.logger.Warn("registry lookup failed, using alias address",
			"account", accountID, "err", err)
		return fallback, nil
	}
	bound := strings.TrimSpace(payload.EVMAddress)
	if bound == "" || !common.IsHexAddress(bound) {
		return fallback, nil
	}
	addr := common.HexToAddress(bound)
	if addr == (common.Address{}) {
		return fallback, nil
	}
	return Resolution{Account: accountID, Address: addr, Source: SourceCanonical}, nil
}

func (c *Client) fetch(ctx context.Context, accountID string) (*accountPayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/v1/accounts/%s", c.baseURL, accountID), nil)
	if err != nil {
		return nil, fmt.Errorf("registry: request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry: call: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry: unexpected status %d", resp.StatusCode)
	}
	var payload accountPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("registry: decode: %w", err)
	}
	return &payload, nil
}

// AliasAddress derives the deterministic 20-byte address for a numeric
// account id: 4-byte shard, 8-byte realm, 8-byte account number, all
// big-endian.
func AliasAddress(accountID string) (common.Address, error) {
	parts := strings.Split(strings.TrimSpace(accountID), ".")
	if len(parts) != 3 {
		return common.Address{}, fmt.Errorf("registry: malformed account id %q", accountID)
	}
	shard, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return common.Address{}, fmt.Errorf("registry: malformed shard in %q: %w", accountID, err)
	}
	realm, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return common.Address{}, fmt.Errorf("registry: malformed realm in %q: %w", accountID, err)
	}
	num, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return common.Address{}, fmt.Errorf("registry: malformed account number in %q: %w", accountID, err)
	}
	var addr common.Address
	binary.BigEndian.PutUint32(addr[0:4], uint32(shard))
	binary.BigEndian.PutUint64(addr[4:12], realm)
	binary.BigEndian.PutUint64(addr[12:20], num)
	return addr, nil
}
