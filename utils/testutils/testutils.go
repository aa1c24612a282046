package testutils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/michaelpento.lv/solarb/types"
)

// Mainnet token fixtures
var (
	SOL  = types.TokenInfo{Symbol: "SOL", Address: "So11111111111111111111111111111111111111112", Decimals: 9}
	USDC = types.TokenInfo{Symbol: "USDC", Address: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Decimals: 6}
	USDT = types.TokenInfo{Symbol: "USDT", Address: "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB", Decimals: 6}
)

// StrPtr returns a pointer to s
func StrPtr(s string) *string {
	return &s
}

// FeeLeg creates a single full-route leg charging fee in feeMint
func FeeLeg(fee, feeMint string) types.RouteLeg {
	return types.RouteLeg{
		VenueLabel:      StrPtr("Orca"),
		InputMint:       SOL.Address,
		OutputMint:      USDC.Address,
		InAmountNative:  "1000000000",
		OutAmountNative: "150000000",
		FeeAmountNative: StrPtr(fee),
		FeeMint:         StrPtr(feeMint),
		PercentOfRoute:  100,
	}
}

// QuoteFunc returns the output amount for a quote request. An empty result
// is answered with a "no route" error payload.
type QuoteFunc func(inputMint, outputMint, amount string) string

// QuoteServer is a fake Jupiter v6 quote endpoint
type QuoteServer struct {
	*httptest.Server
	requests atomic.Int32
}

// NewQuoteServer starts a quote server closed at test cleanup
func NewQuoteServer(t *testing.T, quote QuoteFunc) *QuoteServer {
	t.Helper()
	qs := &QuoteServer{}
	qs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		qs.requests.Add(1)
		q := r.URL.Query()
		in, out, amount := q.Get("inputMint"), q.Get("outputMint"), q.Get("amount")

		body := map[string]interface{}{
			"inputMint":   in,
			"outputMint":  out,
			"inAmount":    amount,
			"slippageBps": 50,
			"contextSlot": 1,
			"routePlan":   []interface{}{},
		}
		if outAmount := quote(in, out, amount); outAmount != "" {
			body["outAmount"] = outAmount
		} else {
			body["error"] = "Could not find any route"
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(body); err != nil {
			t.Errorf("encode quote: %v", err)
		}
	}))
	t.Cleanup(qs.Close)
	return qs
}

// Requests is the number of quote requests served
func (qs *QuoteServer) Requests() int {
	return int(qs.requests.Load())
}
