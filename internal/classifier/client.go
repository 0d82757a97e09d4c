package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a client for the external content-safety scoring API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// ScoreRequest is one scoring call covering a batch of input strings.
type ScoreRequest struct {
	Input []string `json:"input"`
}

// ScoreResult is the classification of a single input string.
type ScoreResult struct {
	Flagged        bool               `json:"flagged"`
	CategoryScores map[string]float64 `json:"category_scores"`
}

// ScoreResponse holds the per-input results, in request order.
type ScoreResponse struct {
	Results []ScoreResult `json:"results"`
}

// NewClient creates a new scoring API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Score submits one batch of input strings and returns one result per
// input. A response whose length does not match the request is a hard error
// for the whole batch.
func (c *Client) Score(ctx context.Context, inputs []string) ([]ScoreResult, error) {
	reqBody := ScoreRequest{Input: inputs}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/moderations", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("classifier returned status %d: %s", resp.StatusCode, string(body))
	}

	var result ScoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(result.Results) != len(inputs) {
		return nil, fmt.Errorf("classifier returned %d results for %d inputs", len(result.Results), len(inputs))
	}

	return result.Results, nil
}
