package hypersync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/moose-code/snubb/internal/model"
)

// Query describes one cursor-paginated request against the indexing backend.
// Log and transaction filters combine as a union: a row matching any filter
// is returned.
type Query struct {
	FromBlock      uint64              `json:"from_block"`
	Logs           []LogFilter         `json:"logs,omitempty"`
	Transactions   []TransactionFilter `json:"transactions,omitempty"`
	FieldSelection FieldSelection      `json:"field_selection"`
}

// LogFilter selects logs by topic position. An empty inner slice matches any
// value at that position.
type LogFilter struct {
	Address []string   `json:"address,omitempty"`
	Topics  [][]string `json:"topics,omitempty"`
}

// TransactionFilter selects transactions by sender or recipient.
type TransactionFilter struct {
	From []string `json:"from,omitempty"`
	To   []string `json:"to,omitempty"`
}

// FieldSelection names the log and transaction columns the backend should
// return.
type FieldSelection struct {
	Log         []string `json:"log,omitempty"`
	Transaction []string `json:"transaction,omitempty"`
}

// Batch is one page of the stream. NextBlock is the cursor for the following
// request.
type Batch struct {
	Logs         []model.RawLog
	Transactions []model.RawTransaction
	NextBlock    uint64
}

// AddressTopic left-pads an address to the 32-byte topic form used in
// indexed event parameters.
func AddressTopic(addr string) string {
	return strings.ToLower(common.HexToHash(addr).Hex())
}

// Client talks to one chain's indexing backend over its HTTP JSON API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a backend client. timeout bounds each individual HTTP
// call.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Height returns the most recent block known to the backend.
func (c *Client) Height(ctx context.Context) (uint64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/height", nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("height request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("height request: status %d", resp.StatusCode)
	}

	var body struct {
		Height uint64 `json:"height"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode height: %w", err)
	}
	return body.Height, nil
}

// OpenStream starts a cursor-paginated stream for the query. height is the
// backend tip the caller observed; the stream ends there, so blocks produced
// after the scan started are not included.
func (c *Client) OpenStream(query Query, height uint64) *Stream {
	return &Stream{
		client: c,
		query:  query,
		cursor: query.FromBlock,
		height: height,
	}
}

// Stream yields batches in non-decreasing block order until the chain tip.
type Stream struct {
	client *Client
	query  Query
	cursor uint64
	height uint64
}

// Recv fetches the next batch, or nil once the stream has reached the tip.
// The cursor only advances on a successful receive, so a failed call can be
// retried without losing position.
func (s *Stream) Recv(ctx context.Context) (*Batch, error) {
	if s.cursor >= s.height {
		return nil, nil
	}

	query := s.query
	query.FromBlock = s.cursor

	batch, err := s.client.runQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	if batch.NextBlock <= s.cursor {
		batch.NextBlock = s.height
	}
	s.cursor = batch.NextBlock
	return batch, nil
}

func (c *Client) runQuery(ctx context.Context, query Query) (*Batch, error) {
	payload, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/query", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("query request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed struct {
		Data []struct {
			Logs         []model.RawLog         `json:"logs"`
			Transactions []model.RawTransaction `json:"transactions"`
		} `json:"data"`
		NextBlock     uint64 `json:"next_block"`
		ArchiveHeight uint64 `json:"archive_height"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode query response: %w", err)
	}

	batch := &Batch{NextBlock: parsed.NextBlock}
	for _, page := range parsed.Data {
		batch.Logs = append(batch.Logs, page.Logs...)
		batch.Transactions = append(batch.Transactions, page.Transactions...)
	}
	return batch, nil
}
