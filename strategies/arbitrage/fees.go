package arbitrage

import (
	"github.com/shopspring/decimal"

	"github.com/michaelpento.lv/solarb/types"
)

// DefaultFeeDecimals is assumed for fee mints that are not in the known token list
const DefaultFeeDecimals uint8 = 6

// MintFee is the total fee charged in one mint across a quote's route
type MintFee struct {
	Mint   string
	Symbol string
	Amount decimal.Decimal
	Stable bool
}

// FeeCalculator converts route fees to human units and totals the ones
// denominated in a stable asset. Fees in any other mint are not priced and
// never reach the stable total.
type FeeCalculator struct {
	stable map[string]struct{}
	known  map[string]types.TokenInfo
}

// NewFeeCalculator builds a calculator from the stable assets and every
// other token whose decimals are known. Stable tokens are known implicitly.
func NewFeeCalculator(stable []types.TokenInfo, known []types.TokenInfo) *FeeCalculator {
	fc := &FeeCalculator{
		stable: make(map[string]struct{}, len(stable)),
		known:  make(map[string]types.TokenInfo, len(stable)+len(known)),
	}
	for _, t := range known {
		fc.known[t.Address] = t
	}
	for _, t := range stable {
		fc.stable[t.Address] = struct{}{}
		fc.known[t.Address] = t
	}
	return fc
}

// IsStable reports whether mint is one of the configured stable assets
func (fc *FeeCalculator) IsStable(mint string) bool {
	_, ok := fc.stable[mint]
	return ok
}

// Decimals returns the decimals for mint, DefaultFeeDecimals when unknown
func (fc *FeeCalculator) Decimals(mint string) uint8 {
	if t, ok := fc.known[mint]; ok {
		return t.Decimals
	}
	return DefaultFeeDecimals
}

// Token returns the known token for mint
func (fc *FeeCalculator) Token(mint string) (types.TokenInfo, bool) {
	t, ok := fc.known[mint]
	return t, ok
}

// AggregateFees sums the stable-denominated fees of q in human units.
// Legs without a fee amount or fee mint, and malformed amounts, are skipped.
func (fc *FeeCalculator) AggregateFees(q *types.Quote) decimal.Decimal {
	total := decimal.Zero
	if q == nil {
		return total
	}
	for _, leg := range q.Route {
		mint, amount, ok := fc.legFee(leg)
		if !ok || !fc.IsStable(mint) {
			continue
		}
		total = total.Add(amount)
	}
	return total
}

// FeesByMint lists every fee in q grouped by mint, in first-seen order
func (fc *FeeCalculator) FeesByMint(q *types.Quote) []MintFee {
	if q == nil {
		return nil
	}

	index := make(map[string]int)
	var fees []MintFee
	for _, leg := range q.Route {
		mint, amount, ok := fc.legFee(leg)
		if !ok {
			continue
		}
		if i, seen := index[mint]; seen {
			fees[i].Amount = fees[i].Amount.Add(amount)
			continue
		}
		index[mint] = len(fees)
		fees = append(fees, MintFee{
			Mint:   mint,
			Symbol: fc.known[mint].Symbol,
			Amount: amount,
			Stable: fc.IsStable(mint),
		})
	}
	return fees
}

func (fc *FeeCalculator) legFee(leg types.RouteLeg) (string, decimal.Decimal, bool) {
	if !leg.HasFee() {
		return "", decimal.Zero, false
	}
	native, ok := types.ParseNative(*leg.FeeAmountNative)
	if !ok {
		return "", decimal.Zero, false
	}
	mint := *leg.FeeMint
	return mint, decimal.NewFromBigInt(native, -int32(fc.Decimals(mint))), true
}
