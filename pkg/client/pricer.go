package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	oneclick "github.com/defuse-protocol/one-click-sdk-go"

	"stellar-swap/pkg/types"
)

// Pricer fetches market prices from the 1Click quoting API. The price feeds
// the relay submission's market_price field; no swap is ever executed
// through it.
type Pricer struct {
	client *oneclick.APIClient
	ctx    context.Context
}

// NewPricer creates a new authenticated pricer.
func NewPricer(jwtToken string) *Pricer {
	config := oneclick.NewConfiguration()

	// Create authenticated context
	ctx := context.WithValue(context.Background(), oneclick.ContextAccessToken, jwtToken)

	return &Pricer{
		client: oneclick.NewAPIClient(config),
		ctx:    ctx,
	}
}

// GetSupportedTokens retrieves all tokens the quoting API knows about
func (p *Pricer) GetSupportedTokens() ([]oneclick.TokenResponse, error) {
	resp, httpResp, err := p.client.OneClickAPI.GetTokens(p.ctx).Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to get tokens: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != 200 {
		return nil, fmt.Errorf("API returned status code %d", httpResp.StatusCode)
	}

	return resp, nil
}

// FindTokenOnChain searches for a token by symbol on a specific chain
func (p *Pricer) FindTokenOnChain(symbol, chain string) (*oneclick.TokenResponse, error) {
	tokens, err := p.GetSupportedTokens()
	if err != nil {
		return nil, err
	}

	symbol = strings.ToUpper(symbol)
	chain = strings.ToLower(chain)

	for _, token := range tokens {
		if strings.ToUpper(token.GetSymbol()) == symbol &&
			strings.ToLower(token.GetBlockchain()) == chain {
			return &token, nil
		}
	}

	return nil, fmt.Errorf("token '%s' not found on chain '%s'", symbol, chain)
}

// MarketPrice quotes the pair with a dry request and derives the rate: how
// many destination tokens one source token currently buys.
func (p *Pricer) MarketPrice(req *types.SwapRequest) (*types.PriceInfo, error) {
	sourceToken, err := p.FindTokenOnChain(req.SourceToken, req.SourceChain)
	if err != nil {
		return nil, fmt.Errorf("source token error: %w", err)
	}

	destToken, err := p.FindTokenOnChain(req.DestToken, req.DestChain)
	if err != nil {
		return nil, fmt.Errorf("destination token error: %w", err)
	}

	amountFloat, err := strconv.ParseFloat(req.Amount, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid amount: %w", err)
	}

	// Multiply by 10^decimals to get smallest unit
	smallestUnit := amountFloat * math.Pow(10, float64(sourceToken.GetDecimals()))
	amountStr := fmt.Sprintf("%.0f", smallestUnit)

	deadline := time.Now().Add(24 * time.Hour)

	quoteReq := oneclick.NewQuoteRequest(
		true,                     // dry - price discovery only, no deposit address
		"EXACT_INPUT",            // swapType
		100,                      // slippageTolerance (1%)
		sourceToken.GetAssetId(), // originAsset
		"ORIGIN_CHAIN",           // depositType
		destToken.GetAssetId(),   // destinationAsset
		amountStr,                // amount in smallest unit
		req.BuyerAddr,            // refundTo
		"ORIGIN_CHAIN",           // refundType
		req.BuyerAddr,            // recipient
		"DESTINATION_CHAIN",      // recipientType
		deadline,                 // deadline
	)

	resp, httpResp, err := p.client.OneClickAPI.GetQuote(p.ctx).QuoteRequest(*quoteReq).Execute()
	if err != nil {
		// Try to extract the actual error message from the response
		if httpResp != nil {
			defer httpResp.Body.Close()
			bodyBytes, readErr := io.ReadAll(httpResp.Body)
			if readErr == nil && len(bodyBytes) > 0 {
				var errorResp map[string]interface{}
				if jsonErr := json.Unmarshal(bodyBytes, &errorResp); jsonErr == nil {
					if message, ok := errorResp["message"].(string); ok {
						return nil, fmt.Errorf("API error (status %d): %s", httpResp.StatusCode, message)
					}
				}
				return nil, fmt.Errorf("API error (status %d): %s", httpResp.StatusCode, string(bodyBytes))
			}
		}
		return nil, fmt.Errorf("failed to get quote from API: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, fmt.Errorf("API returned status code %d", httpResp.StatusCode)
	}
	if resp == nil {
		return nil, fmt.Errorf("empty quote response")
	}

	quoteDetails := resp.GetQuote()

	amountIn, err := strconv.ParseFloat(quoteDetails.GetAmountInFormatted(), 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount in: %w", err)
	}
	amountOut, err := strconv.ParseFloat(quoteDetails.GetAmountOutFormatted(), 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount out: %w", err)
	}
	if amountIn == 0 {
		return nil, fmt.Errorf("invalid amount in: 0")
	}

	price := amountOut / amountIn

	return &types.PriceInfo{
		Price:       fmt.Sprintf("%.8f", price),
		PriceFloat:  price,
		SourceToken: req.SourceToken,
		DestToken:   req.DestToken,
		SourceChain: req.SourceChain,
		DestChain:   req.DestChain,
	}, nil
}
