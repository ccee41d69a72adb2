// Package indexed implements the explorer-API source strategy: one
// rate-limited HTTP call per logical fetch against an etherscan-style
// transaction index.
package indexed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/chainhist/chainhist/internal/model"
	"github.com/chainhist/chainhist/internal/ratelimit"
	"github.com/chainhist/chainhist/internal/source"
)

const defaultTimeout = 10 * time.Second

// Client queries an indexed transaction API for one network.
type Client struct {
	network    string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	timeout    time.Duration
}

// Config holds the connection details for one network's index.
type Config struct {
	Network string
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewClient builds an indexed-API client. limiter may not be nil; every
// outbound call acquires a slot for the network key first.
func NewClient(cfg Config, limiter *ratelimit.Limiter) (*Client, error) {
	if cfg.Network == "" {
		return nil, fmt.Errorf("network is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("limiter is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		network:    cfg.Network,
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{},
		limiter:    limiter,
		timeout:    timeout,
	}, nil
}

// Network returns the network key this client serves.
func (c *Client) Network() string { return c.network }

// FetchNative lists native-asset transfers for address.
func (c *Client) FetchNative(ctx context.Context, address string, opts source.FetchOptions) ([]model.RawRecord, error) {
	return c.fetch(ctx, "txlist", address, opts)
}

// FetchTokenTransfers lists token transfers for address.
func (c *Client) FetchTokenTransfers(ctx context.Context, address string, opts source.FetchOptions) ([]model.RawRecord, error) {
	return c.fetch(ctx, "tokentx", address, opts)
}

// Ping issues a minimal request to verify the endpoint is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.fetch(ctx, "txlist", "0x0000000000000000000000000000000000000000", source.FetchOptions{Page: 1, PageSize: 1})
	return err
}

// fetch performs one rate-limited GET. A non-success API status (an empty
// or absent result) yields an empty list; only transport-level failures
// return an error.
func (c *Client) fetch(ctx context.Context, action, address string, opts source.FetchOptions) ([]model.RawRecord, error) {
	if err := c.limiter.Acquire(ctx, c.network); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endBlock := opts.EndBlock
	if endBlock == 0 {
		endBlock = 99999999
	}
	sort := "desc"
	if opts.Ascending {
		sort = "asc"
	}

	q := url.Values{}
	q.Set("module", "account")
	q.Set("action", action)
	q.Set("address", address)
	q.Set("startblock", strconv.FormatUint(opts.StartBlock, 10))
	q.Set("endblock", strconv.FormatUint(endBlock, 10))
	q.Set("sort", sort)
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.PageSize > 0 {
		q.Set("offset", strconv.Itoa(opts.PageSize))
	}
	if c.apiKey != "" {
		q.Set("apikey", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: call %s: %v", source.ErrUnavailable, action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s status %d", source.ErrUnavailable, action, resp.StatusCode)
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode %s response: %v", source.ErrUnavailable, action, err)
	}

	// status "0" covers both errors and "no transactions found"; either
	// way the caller gets an empty list, never an error.
	if body.Status != "1" {
		return []model.RawRecord{}, nil
	}

	records := make([]model.RawRecord, 0, len(body.Result))
	for _, row := range body.Result {
		records = append(records, row.toRawRecord())
	}
	return records, nil
}

type apiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  []row  `json:"result"`
}

// row is one etherscan-style result entry; every field arrives as a
// string. Token fields are present only on tokentx rows.
type row struct {
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	BlockNumber     string `json:"blockNumber"`
	TimeStamp       string `json:"timeStamp"`
	GasUsed         string `json:"gasUsed"`
	GasPrice        string `json:"gasPrice"`
	IsError         string `json:"isError"`
	TxReceiptStatus string `json:"txreceipt_status"`
	ContractAddress string `json:"contractAddress"`
	TokenSymbol     string `json:"tokenSymbol"`
	TokenName       string `json:"tokenName"`
	TokenDecimal    string `json:"tokenDecimal"`
	MethodID        string `json:"methodId"`
	FunctionName    string `json:"functionName"`
	Input           string `json:"input"`
}

func (r row) toRawRecord() model.RawRecord {
	blockNumber, _ := strconv.ParseUint(r.BlockNumber, 10, 64)
	timestamp, _ := strconv.ParseInt(r.TimeStamp, 10, 64)
	tokenDecimal, _ := strconv.Atoi(r.TokenDecimal)

	return model.RawRecord{
		Hash:            r.Hash,
		From:            r.From,
		To:              r.To,
		Value:           r.Value,
		BlockNumber:     blockNumber,
		TimeStamp:       timestamp,
		GasUsed:         r.GasUsed,
		GasPrice:        r.GasPrice,
		IsError:         r.IsError == "1",
		ReceiptStatus:   r.TxReceiptStatus,
		ContractAddress: r.ContractAddress,
		TokenSymbol:     r.TokenSymbol,
		TokenName:       r.TokenName,
		TokenDecimal:    tokenDecimal,
		MethodID:        r.MethodID,
		FunctionName:    r.FunctionName,
		Input:           r.Input,
	}
}
