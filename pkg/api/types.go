package api

// API response types for REST endpoints and WebSocket messages

// AccountInfo represents one account's balances
type AccountInfo struct {
	Address    string `json:"address"`
	Collateral int64  `json:"collateral"` // collateral asset units
	Loan       int64  `json:"loan"`       // synthetic units outstanding
}

// PriceLevel represents an aggregated [price, quantity] tuple
type PriceLevel struct {
	Price    int64 `json:"price"`    // 1e-6 fixed point
	Quantity int64 `json:"quantity"` // summed across resting orders
}

// OrderbookSnapshot represents the book aggregated per tick
type OrderbookSnapshot struct {
	Bids      []PriceLevel `json:"bids"` // sorted high to low
	Asks      []PriceLevel `json:"asks"` // sorted low to high
	Timestamp int64        `json:"timestamp"` // unix ms
}

// OrderInfo represents one live order
type OrderInfo struct {
	ID        uint64 `json:"id"`
	Owner     string `json:"owner"`
	Side      string `json:"side"` // "bid" or "ask"
	Price     int64  `json:"price"`
	Quantity  int64  `json:"quantity"`
	Escrow    int64  `json:"escrow"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"createdAt"` // unix ms
}

// TradeInfo represents one executed trade
type TradeInfo struct {
	ID        string `json:"id"`
	Price     int64  `json:"price"`
	Quantity  int64  `json:"quantity"`
	Buyer     string `json:"buyer"`
	Seller    string `json:"seller"`
	Timestamp int64  `json:"timestamp"` // unix ms
}

// ConfigInfo represents the live protocol parameters
type ConfigInfo struct {
	Owner                   string `json:"owner"`
	Liquidator              string `json:"liquidator"`
	Custody                 string `json:"custody"`
	LiquidationDeadline     int64  `json:"liquidationDeadline"` // unix seconds
	LiquidationThresholdBps int64  `json:"liquidationThresholdBps"`
	LiquidationPenaltyBps   int64  `json:"liquidationPenaltyBps"`
	CollateralAsset         string `json:"collateralAsset"`
	LoanAsset               string `json:"loanAsset"`
	StableAsset             string `json:"stableAsset"`
}

// RetainedInfo represents the protocol's retained stable balance
type RetainedInfo struct {
	Retained int64 `json:"retained"`
}

// ErrorResponse is the uniform error envelope
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WSSubscribeRequest is the client -> server subscription message
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// WSTradeEvent is pushed on the "trades" channel for every fill
type WSTradeEvent struct {
	Channel string    `json:"channel"`
	Data    TradeInfo `json:"data"`
}
