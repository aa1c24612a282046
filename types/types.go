package types

import (
	"encoding/binary"
	"math/big"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/shopspring/decimal"
)

// UnknownVenue is the label used for route legs the quoting service did not name.
const UnknownVenue = "unknown"

// TokenInfo describes a fungible token on the ledger
type TokenInfo struct {
	Symbol   string `yaml:"symbol"`
	Address  string `yaml:"address"`
	Decimals uint8  `yaml:"decimals"`
}

// ToHuman converts a native integer amount of this token to human units
func (t TokenInfo) ToHuman(native *big.Int) decimal.Decimal {
	if native == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(native, -int32(t.Decimals))
}

// RouteLeg is one hop inside a quote's execution plan.
// Optional fields are nil when the quoting service omitted them.
type RouteLeg struct {
	VenueLabel      *string
	VenueID         *string
	InputMint       string
	OutputMint      string
	InAmountNative  string
	OutAmountNative string
	FeeAmountNative *string
	FeeMint         *string
	PercentOfRoute  float64
}

// Label returns the venue label or UnknownVenue
func (l RouteLeg) Label() string {
	if l.VenueLabel == nil || *l.VenueLabel == "" {
		return UnknownVenue
	}
	return *l.VenueLabel
}

// HasFee reports whether the leg carries both a fee amount and its mint
func (l RouteLeg) HasFee() bool {
	return l.FeeAmountNative != nil && *l.FeeAmountNative != "" &&
		l.FeeMint != nil && *l.FeeMint != ""
}

// Quote is a swap quote as returned by the quoting service
type Quote struct {
	InputMint              string
	OutputMint             string
	InAmountNative         string
	OutAmountNative        string
	OtherAmountThreshold   string
	SwapMode               string
	SlippageBps            uint16
	PriceImpactPercent     string
	Route                  []RouteLeg
	ContextSlot            uint64
	RequestDurationSeconds float64
	Error                  string
}

// OutAmount parses the quoted output amount. The second result is false when
// the amount is absent, not a base-10 integer, or negative.
func (q *Quote) OutAmount() (*big.Int, bool) {
	if q == nil {
		return nil, false
	}
	return ParseNative(q.OutAmountNative)
}

// InAmount parses the quoted input amount
func (q *Quote) InAmount() (*big.Int, bool) {
	if q == nil {
		return nil, false
	}
	return ParseNative(q.InAmountNative)
}

// VenueShare is the summed route percentage attributed to one venue
type VenueShare struct {
	Label   string
	Percent float64
}

// VenueShares aggregates route percentages per venue label, in the order the
// venues first appear in the route.
func (q *Quote) VenueShares() []VenueShare {
	if q == nil || len(q.Route) == 0 {
		return nil
	}

	index := make(map[string]int)
	var shares []VenueShare
	for _, leg := range q.Route {
		label := leg.Label()
		if i, ok := index[label]; ok {
			shares[i].Percent += leg.PercentOfRoute
			continue
		}
		index[label] = len(shares)
		shares = append(shares, VenueShare{Label: label, Percent: leg.PercentOfRoute})
	}
	return shares
}

// ParseNative parses a non-negative base-10 integer amount
func ParseNative(s string) (*big.Int, bool) {
	if s == "" {
		return nil, false
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, false
	}
	return v, true
}

// ArbitrageOpportunity is a start -> middle -> start cycle whose profit met
// the configured minimum.
type ArbitrageOpportunity struct {
	StartToken  TokenInfo
	MiddleToken TokenInfo

	StartAmountNative  *big.Int
	MiddleAmountNative *big.Int
	FinalAmountNative  *big.Int
	ProfitAmountNative *big.Int

	ProfitPercent   decimal.Decimal
	TotalFeesStable decimal.Decimal

	FirstQuote  *Quote
	SecondQuote *Quote

	DetectedAt time.Time
}

func (o *ArbitrageOpportunity) StartAmount() decimal.Decimal {
	return o.StartToken.ToHuman(o.StartAmountNative)
}

func (o *ArbitrageOpportunity) MiddleAmount() decimal.Decimal {
	return o.MiddleToken.ToHuman(o.MiddleAmountNative)
}

func (o *ArbitrageOpportunity) FinalAmount() decimal.Decimal {
	return o.StartToken.ToHuman(o.FinalAmountNative)
}

func (o *ArbitrageOpportunity) ProfitAmount() decimal.Decimal {
	return o.StartToken.ToHuman(o.ProfitAmountNative)
}

// Fingerprint identifies the cycle by pair, amounts and quote slots
func (o *ArbitrageOpportunity) Fingerprint() uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(o.StartToken.Address)
	_, _ = d.WriteString("|")
	_, _ = d.WriteString(o.MiddleToken.Address)
	for _, v := range []*big.Int{o.StartAmountNative, o.MiddleAmountNative, o.FinalAmountNative} {
		_, _ = d.WriteString("|")
		if v != nil {
			_, _ = d.WriteString(v.String())
		}
	}

	var slots [16]byte
	if o.FirstQuote != nil {
		binary.BigEndian.PutUint64(slots[:8], o.FirstQuote.ContextSlot)
	}
	if o.SecondQuote != nil {
		binary.BigEndian.PutUint64(slots[8:], o.SecondQuote.ContextSlot)
	}
	_, _ = d.Write(slots[:])
	return d.Sum64()
}
