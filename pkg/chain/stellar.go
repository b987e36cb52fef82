package chain

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"stellar-swap/config"
	"stellar-swap/pkg/escrow"
)

// StellarAdapter drives Soroban escrow contracts through a local signing
// bridge speaking JSON-RPC over HTTP. The bridge holds the Stellar keypair
// and translates calls into Soroban contract invocations, the same way a
// wallet RPC daemon fronts its chain.
type StellarAdapter struct {
	network config.ChainConfig
	client  *http.Client
}

// NewStellarAdapter creates a Stellar adapter talking to the configured
// bridge endpoint.
func NewStellarAdapter(network config.ChainConfig) (*StellarAdapter, error) {
	if network.RPCUrl == "" {
		return nil, fmt.Errorf("bridge URL not configured")
	}
	return &StellarAdapter{
		network: network,
		client:  &http.Client{},
	}, nil
}

// StellarRPCRequest represents a JSON-RPC request to the signing bridge
type StellarRPCRequest struct {
	JSONRpc string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// StellarRPCResponse represents a JSON-RPC response from the signing bridge
type StellarRPCResponse struct {
	JSONRpc string           `json:"jsonrpc"`
	ID      string           `json:"id"`
	Result  json.RawMessage  `json:"result,omitempty"`
	Error   *StellarRPCError `json:"error,omitempty"`
}

// StellarRPCError represents an error in the RPC response
type StellarRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type stellarEscrowResult struct {
	Address                 string   `json:"address"`
	Recipient               string   `json:"recipient"`
	Creator                 string   `json:"creator"`
	Token                   string   `json:"token"`
	Amount                  string   `json:"amount"`
	Commitment              string   `json:"commitment"`
	WithdrawalStart         int64    `json:"withdrawal_start"`
	PublicWithdrawalStart   int64    `json:"public_withdrawal_start"`
	CancellationStart       int64    `json:"cancellation_start"`
	PublicCancellationStart int64    `json:"public_cancellation_start"`
	State                   string   `json:"state"`
	PartialFill             bool     `json:"partial_fill"`
	TotalParts              int      `json:"total_parts"`
	ConsumedLeaves          []int    `json:"consumed_leaves"`
}

func (s *StellarAdapter) CreateEscrow(ctx context.Context, params EscrowParams) (string, error) {
	result, err := s.callRPC(ctx, "create_escrow", map[string]interface{}{
		"contract_id":               s.network.FactoryAddress,
		"recipient":                 params.Recipient,
		"token":                     params.Token,
		"amount":                    params.Amount.String(),
		"security_deposit":          params.Deposit().String(),
		"commitment":                params.Commitment.Hex(),
		"withdrawal_start":          params.Windows.WithdrawalStart,
		"public_withdrawal_start":   params.Windows.PublicWithdrawalStart,
		"cancellation_start":        params.Windows.CancellationStart,
		"public_cancellation_start": params.Windows.PublicCancellationStart,
		"partial_fill":              params.PartialFill,
		"total_parts":               params.TotalParts,
	})
	if err != nil {
		return "", err
	}

	var created struct {
		Address string `json:"address"`
		TxHash  string `json:"tx_hash"`
	}
	if err := json.Unmarshal(result, &created); err != nil {
		return "", fmt.Errorf("failed to parse create_escrow result: %w", err)
	}
	if created.Address == "" {
		return "", fmt.Errorf("empty escrow address returned")
	}
	return created.Address, nil
}

func (s *StellarAdapter) AwaitConfirmation(ctx context.Context, address string) error {
	// The bridge only returns from create_escrow once the ledger has closed
	// over the transaction, so a read confirms the escrow is live.
	_, err := s.ReadEscrow(ctx, address)
	return err
}

func (s *StellarAdapter) Withdraw(ctx context.Context, address string, secret []byte) error {
	_, err := s.callRPC(ctx, "withdraw", map[string]interface{}{
		"address": address,
		"secret":  hex.EncodeToString(secret),
	})
	return err
}

func (s *StellarAdapter) WithdrawWithProof(ctx context.Context, address string, secret []byte, proof []common.Hash, leafIndex int) error {
	proofHex := make([]string, len(proof))
	for i, node := range proof {
		proofHex[i] = node.Hex()
	}

	_, err := s.callRPC(ctx, "withdraw_with_proof", map[string]interface{}{
		"address":    address,
		"secret":     hex.EncodeToString(secret),
		"proof":      proofHex,
		"leaf_index": leafIndex,
	})
	return err
}

func (s *StellarAdapter) Cancel(ctx context.Context, address string) error {
	_, err := s.callRPC(ctx, "cancel", map[string]interface{}{"address": address})
	return err
}

func (s *StellarAdapter) Rescue(ctx context.Context, address string) error {
	_, err := s.callRPC(ctx, "rescue", map[string]interface{}{"address": address})
	return err
}

func (s *StellarAdapter) ReadEscrow(ctx context.Context, address string) (*escrow.Escrow, error) {
	result, err := s.callRPC(ctx, "get_escrow", map[string]interface{}{"address": address})
	if err != nil {
		return nil, err
	}

	var raw stellarEscrowResult
	if err := json.Unmarshal(result, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse get_escrow result: %w", err)
	}

	amount, ok := new(big.Int).SetString(raw.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid escrow amount: %s", raw.Amount)
	}

	state := escrow.State(raw.State)
	switch state {
	case escrow.StateCreated, escrow.StateWithdrawn, escrow.StateCancelled:
	default:
		return nil, fmt.Errorf("unknown escrow state: %s", raw.State)
	}

	return &escrow.Escrow{
		Address:    address,
		Recipient:  raw.Recipient,
		Creator:    raw.Creator,
		Token:      raw.Token,
		Amount:     amount,
		Commitment: common.HexToHash(raw.Commitment),
		Windows: escrow.Windows{
			WithdrawalStart:         raw.WithdrawalStart,
			PublicWithdrawalStart:   raw.PublicWithdrawalStart,
			CancellationStart:       raw.CancellationStart,
			PublicCancellationStart: raw.PublicCancellationStart,
		},
		State:          state,
		PartialFill:    raw.PartialFill,
		TotalParts:     raw.TotalParts,
		ConsumedLeaves: raw.ConsumedLeaves,
	}, nil
}

// callRPC makes a JSON-RPC call to the signing bridge and maps contract
// rejections onto the shared sentinel errors.
func (s *StellarAdapter) callRPC(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	rpcReq := StellarRPCRequest{
		JSONRpc: "2.0",
		ID:      "0",
		Method:  method,
		Params:  params,
	}

	reqBody, err := json.Marshal(rpcReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.network.RPCUrl, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: bridge request failed: %v", ErrNetworkFailure, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrNetworkFailure, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: bridge returned status %d: %s", ErrNetworkFailure, resp.StatusCode, string(body))
	}

	var rpcResp StellarRPCResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, s.mapBridgeError(method, rpcResp.Error)
	}

	return rpcResp.Result, nil
}

// mapBridgeError classifies the bridge's error strings. The bridge relays
// Soroban contract panics verbatim, so matching is on message substrings.
func (s *StellarAdapter) mapBridgeError(method string, rpcErr *StellarRPCError) error {
	msg := strings.ToLower(rpcErr.Message)
	switch {
	case strings.Contains(msg, "already finalized"),
		strings.Contains(msg, "already withdrawn"),
		strings.Contains(msg, "already cancelled"):
		return fmt.Errorf("%w: %s", escrow.ErrAlreadyFinalized, rpcErr.Message)
	case strings.Contains(msg, "leaf already consumed"):
		return fmt.Errorf("%w: %s", escrow.ErrLeafAlreadyConsumed, rpcErr.Message)
	case strings.Contains(msg, "invalid secret"),
		strings.Contains(msg, "invalid proof"),
		strings.Contains(msg, "commitment"):
		return fmt.Errorf("%w: %s", escrow.ErrCommitmentMismatch, rpcErr.Message)
	case strings.Contains(msg, "window"),
		strings.Contains(msg, "too early"),
		strings.Contains(msg, "too late"):
		return fmt.Errorf("%w: %s", escrow.ErrWindowViolation, rpcErr.Message)
	case strings.Contains(msg, "insufficient"):
		return fmt.Errorf("%w: %s", ErrInsufficientFunds, rpcErr.Message)
	default:
		return fmt.Errorf("bridge %s failed (code %d): %s", method, rpcErr.Code, rpcErr.Message)
	}
}
