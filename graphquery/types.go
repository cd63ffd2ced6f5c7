package graphquery

// PoolItem is one exchange hop as the route-graph service describes it.
type PoolItem struct {
	Pool       string `json:"pool"`
	ExchangeID int    `json:"exchange_id"`
	Fee        uint32 `json:"fee"`
	Version    uint8  `json:"version"`
	Token0     string `json:"token0"`
	Token1     string `json:"token1"`
}

// MultiswapItem is a split route: parallel hop lists with suggested
// percentage shares.
type MultiswapItem struct {
	Routes   [][]PoolItem `json:"routes"`
	Percents []float64    `json:"percents"`
}

// RouteItems carries both response flavors; at most one is populated.
type RouteItems struct {
	Swap      [][]PoolItem    `json:"swap"`
	Multiswap []MultiswapItem `json:"multiswap"`
}

// TokenItem describes a token referenced by the returned routes.
type TokenItem struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// RoutesResponse is the full payload of GET /routes.
type RoutesResponse struct {
	Items  RouteItems  `json:"items"`
	Tokens []TokenItem `json:"tokens"`
}
