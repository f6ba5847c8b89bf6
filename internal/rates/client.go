package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"lsd-vault-node/internal/assets"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Client fetches a full rate snapshot from the oracle service over REST.
// The stream keeps rates current afterwards; the snapshot seeds startup.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

type rateEntry struct {
	Asset string `json:"asset"`
	Ray   string `json:"ray"`
}

type snapshotResponse struct {
	Rates []rateEntry `json:"rates"`
}

// Snapshot fetches all published rates and applies them to the oracle.
func (c *Client) Snapshot(ctx context.Context, oracle *Oracle) error {
	url := c.baseURL + "/v1/rates"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}
	var payload snapshotResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return err
	}
	applied := 0
	for _, entry := range payload.Rates {
		asset, ray, err := parseRateEntry(entry)
		if err != nil {
			if c.log != nil {
				c.log.Warn("skipping malformed rate entry", zap.String("asset", entry.Asset), zap.Error(err))
			}
			continue
		}
		oracle.SetRate(asset, ray)
		applied++
	}
	if c.log != nil {
		c.log.Info("rate snapshot applied", zap.Int("rates", applied))
	}
	return nil
}

func parseRateEntry(entry rateEntry) (common.Address, *big.Int, error) {
	parsed, err := assets.Parse(entry.Asset)
	if err != nil {
		return common.Address{}, nil, err
	}
	value, ok := new(big.Int).SetString(entry.Ray, 10)
	if !ok || value.Sign() <= 0 {
		return common.Address{}, nil, fmt.Errorf("invalid ray rate %q", entry.Ray)
	}
	return parsed, value, nil
}
