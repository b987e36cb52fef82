package types

// SwapRequest represents a user's swap command
type SwapRequest struct {
	Amount      string
	SourceToken string
	DestToken   string
	SourceChain string
	DestChain   string
	BuyerAddr   string
	Parts       int // number of partial-fill parts, 0 or 1 for single fill
}

// OrderSubmission is the relay's order payload. The commitment, secrets, and
// escrow timing never appear here; the relay only needs the economic terms.
type OrderSubmission struct {
	OrderID      string `json:"orderId"`
	BuyerAddress string `json:"buyerAddress"`
	SrcChainID   int64  `json:"srcChainId"`
	DstChainID   int64  `json:"dstChainId"`
	SrcToken     string `json:"srcToken"`
	DstToken     string `json:"dstToken"`
	SrcAmount    string `json:"srcAmount"`
	DstAmount    string `json:"dstAmount"`
	MarketPrice  string `json:"market_price"`
	Slippage     int    `json:"slippage"`
}

// PriceInfo holds the market rate a quote implies for a token pair
type PriceInfo struct {
	Price       string  // Price of 1 unit of source token in dest tokens
	PriceFloat  float64 // Price as float for comparison
	SourceToken string
	DestToken   string
	SourceChain string
	DestChain   string
}

// QuoteDisplay holds formatted order information for display
type QuoteDisplay struct {
	SourceAmount string
	SourceToken  string
	DestAmount   string
	DestToken    string
	Rate         string
	OrderID      string
	Parts        int
}
