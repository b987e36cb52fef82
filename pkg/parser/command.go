package parser

import (
	"fmt"
	"regexp"
	"strings"

	"stellar-swap/pkg/types"
)

// ParseSwapCommand parses a natural language swap command
// Examples:
//   - "swap 1 XLM on stellar to USDC on base"
//   - "1.5 ETH on base to XLM on stellar"
//   - "100 USDC to XLM"
func ParseSwapCommand(command string) (*types.SwapRequest, error) {
	// Normalize the command
	command = strings.TrimSpace(strings.ToUpper(command))

	// Remove the word "SWAP" if present at the beginning
	command = strings.TrimPrefix(command, "SWAP ")

	// Pattern: <amount> <source_token> [ON <chain>] TO <dest_token> [ON <chain>]
	pattern := regexp.MustCompile(`^(\d+\.?\d*)\s+([A-Z0-9]+)(?:\s+ON\s+([A-Z0-9]+))?\s+TO\s+([A-Z0-9]+)(?:\s+ON\s+([A-Z0-9]+))?$`)

	matches := pattern.FindStringSubmatch(command)
	if matches == nil {
		return nil, fmt.Errorf("invalid swap command format. Expected: 'swap <amount> <token> [on <chain>] to <token> [on <chain>]' (e.g., 'swap 1 XLM on stellar to USDC on base')")
	}

	return &types.SwapRequest{
		Amount:      matches[1],
		SourceToken: matches[2],
		SourceChain: strings.ToLower(matches[3]),
		DestToken:   matches[4],
		DestChain:   strings.ToLower(matches[5]),
	}, nil
}

// ValidateSwapRequest validates that a swap request has all required fields
func ValidateSwapRequest(req *types.SwapRequest) error {
	if req.Amount == "" {
		return fmt.Errorf("amount is required")
	}
	if req.SourceToken == "" {
		return fmt.Errorf("source token is required")
	}
	if req.DestToken == "" {
		return fmt.Errorf("destination token is required")
	}
	if req.SourceChain == "" {
		return fmt.Errorf("source chain is required")
	}
	if req.DestChain == "" {
		return fmt.Errorf("destination chain is required")
	}
	if req.Parts == 1 {
		return fmt.Errorf("partial fill requires at least 2 parts")
	}
	return nil
}

// NormalizeTokenSymbol normalizes token symbols to standard format
func NormalizeTokenSymbol(symbol string) string {
	// Convert to uppercase for consistency
	symbol = strings.TrimSpace(strings.ToUpper(symbol))

	// Handle common aliases
	aliases := map[string]string{
		"WBTC": "BTC",
		"WETH": "ETH",
		"WXLM": "XLM",
	}

	if normalized, exists := aliases[symbol]; exists {
		return normalized
	}

	return symbol
}
