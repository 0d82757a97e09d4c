package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/ecp-eth/comments-monorepo-sub003/internal/block_processor"
)

// Client fetches decoded blocks with full transaction bodies from the chain
// sync service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

type blockJSON struct {
	Number       uint64 `json:"number"`
	Time         uint64 `json:"timestamp"`
	Transactions []struct {
		From  string `json:"from"`
		Hash  string `json:"hash"`
		Input string `json:"input"`
	} `json:"transactions"`
}

// Head fetches the current chain head height.
func (c *Client) Head(ctx context.Context, chainID uint64) (uint64, error) {
	url := fmt.Sprintf("%s/v1/head?chain_id=%d", c.baseURL, chainID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create head request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch chain head: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("chain sync service returned status: %d", resp.StatusCode)
	}

	var response struct {
		Number uint64 `json:"number"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return 0, fmt.Errorf("failed to decode head response: %w", err)
	}
	return response.Number, nil
}

// GetBlock fetches one block by number. A 404 means the block does not
// exist yet and comes back as (nil, nil).
func (c *Client) GetBlock(ctx context.Context, chainID, number uint64) (*block_processor.Block, error) {
	url := fmt.Sprintf("%s/v1/blocks/%d?chain_id=%d", c.baseURL, number, chainID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create block request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch block %d: %w", number, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chain sync service returned status %d for block %d", resp.StatusCode, number)
	}

	var raw blockJSON
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode block %d: %w", number, err)
	}
	return convertBlock(&raw)
}

func convertBlock(raw *blockJSON) (*block_processor.Block, error) {
	block := &block_processor.Block{
		Number:       raw.Number,
		Time:         raw.Time,
		Transactions: make([]block_processor.Transaction, 0, len(raw.Transactions)),
	}
	for i, tx := range raw.Transactions {
		input, err := hexutil.Decode(tx.Input)
		if err != nil {
			return nil, fmt.Errorf("transaction %d has invalid input hex: %w", i, err)
		}
		block.Transactions = append(block.Transactions, block_processor.Transaction{
			From:  common.HexToAddress(tx.From),
			Hash:  common.HexToHash(tx.Hash),
			Input: input,
		})
	}
	return block, nil
}
