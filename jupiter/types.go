package jupiter

import "github.com/michaelpento.lv/solarb/types"

// QuoteResponse is the JSON body returned by GET /v6/quote
type QuoteResponse struct {
	InputMint            string          `json:"inputMint"`
	InAmount             string          `json:"inAmount"`
	OutputMint           string          `json:"outputMint"`
	OutAmount            string          `json:"outAmount"`
	OtherAmountThreshold string          `json:"otherAmountThreshold"`
	SwapMode             string          `json:"swapMode"`
	SlippageBps          uint16          `json:"slippageBps"`
	PriceImpactPct       string          `json:"priceImpactPct"`
	RoutePlan            []RoutePlanStep `json:"routePlan"`
	ContextSlot          uint64          `json:"contextSlot"`
	TimeTaken            float64         `json:"timeTaken"`
	Error                string          `json:"error,omitempty"`
}

// RoutePlanStep is one entry of the route plan
type RoutePlanStep struct {
	SwapInfo SwapInfo `json:"swapInfo"`
	Percent  float64  `json:"percent"`
}

// SwapInfo describes the venue a route step trades on. Pointer fields are
// optional in the payload.
type SwapInfo struct {
	AmmKey     *string `json:"ammKey,omitempty"`
	Label      *string `json:"label,omitempty"`
	InputMint  string  `json:"inputMint"`
	OutputMint string  `json:"outputMint"`
	InAmount   string  `json:"inAmount"`
	OutAmount  string  `json:"outAmount"`
	FeeAmount  *string `json:"feeAmount,omitempty"`
	FeeMint    *string `json:"feeMint,omitempty"`
}

// ToQuote converts the wire payload into the domain quote
func (r *QuoteResponse) ToQuote() *types.Quote {
	q := &types.Quote{
		InputMint:              r.InputMint,
		OutputMint:             r.OutputMint,
		InAmountNative:         r.InAmount,
		OutAmountNative:        r.OutAmount,
		OtherAmountThreshold:   r.OtherAmountThreshold,
		SwapMode:               r.SwapMode,
		SlippageBps:            r.SlippageBps,
		PriceImpactPercent:     r.PriceImpactPct,
		ContextSlot:            r.ContextSlot,
		RequestDurationSeconds: r.TimeTaken,
		Error:                  r.Error,
	}

	if len(r.RoutePlan) > 0 {
		q.Route = make([]types.RouteLeg, 0, len(r.RoutePlan))
	}
	for _, step := range r.RoutePlan {
		info := step.SwapInfo
		q.Route = append(q.Route, types.RouteLeg{
			VenueLabel:      info.Label,
			VenueID:         info.AmmKey,
			InputMint:       info.InputMint,
			OutputMint:      info.OutputMint,
			InAmountNative:  info.InAmount,
			OutAmountNative: info.OutAmount,
			FeeAmountNative: info.FeeAmount,
			FeeMint:         info.FeeMint,
			PercentOfRoute:  step.Percent,
		})
	}
	return q
}
