package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"stellar-swap/pkg/chain"
	"stellar-swap/pkg/types"
)

// RelayClient submits orders to the resolver relay. The relay only ever sees
// the economic terms of an order; commitments, secrets, and escrow timing
// stay local.
type RelayClient struct {
	baseURL string
	client  *http.Client
}

// NewRelayClient creates a relay client for the given base URL.
func NewRelayClient(baseURL string) *RelayClient {
	return &RelayClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{},
	}
}

// SubmitCreate announces a single-fill order to the relay.
func (r *RelayClient) SubmitCreate(ctx context.Context, sub *types.OrderSubmission) error {
	return r.post(ctx, "/create", sub)
}

// SubmitPartialFill announces a partial-fill order to the relay.
func (r *RelayClient) SubmitPartialFill(ctx context.Context, sub *types.OrderSubmission) error {
	return r.post(ctx, "/partialfill", sub)
}

func (r *RelayClient) post(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", r.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: relay request failed: %v", chain.ErrNetworkFailure, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read relay response: %v", chain.ErrNetworkFailure, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Try to extract the actual error message from the response
		var errorResp map[string]interface{}
		if jsonErr := json.Unmarshal(respBody, &errorResp); jsonErr == nil {
			if message, ok := errorResp["message"].(string); ok {
				return fmt.Errorf("relay error (status %d): %s", resp.StatusCode, message)
			}
		}
		return fmt.Errorf("relay returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}
