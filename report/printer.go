package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"github.com/michaelpento.lv/solarb/strategies/arbitrage"
	"github.com/michaelpento.lv/solarb/types"
	"github.com/michaelpento.lv/solarb/utils/math"
	"github.com/michaelpento.lv/solarb/utils/metrics"
)

const rule = "=================================================="

// Printer renders quotes and opportunities for a terminal
type Printer struct {
	w    io.Writer
	fees *arbitrage.FeeCalculator
}

// NewPrinter creates a printer. fees resolves mint names and decimals.
func NewPrinter(w io.Writer, fees *arbitrage.FeeCalculator) *Printer {
	if fees == nil {
		fees = arbitrage.NewFeeCalculator(nil, nil)
	}
	return &Printer{w: w, fees: fees}
}

// RunInfo describes a monitor run for the banner
type RunInfo struct {
	StartToken       types.TokenInfo
	MiddleToken      types.TokenInfo
	StartAmount      decimal.Decimal
	MinProfitPercent decimal.Decimal
	Interval         time.Duration
	MaxIterations    int
	SlippageBps      uint16
	MaxAttempts      int
}

// Banner prints the run parameters
func (p *Printer) Banner(info RunInfo) {
	iterations := "unbounded"
	if info.MaxIterations > 0 {
		iterations = fmt.Sprintf("%d", info.MaxIterations)
	}

	fmt.Fprintln(p.w, "Starting arbitrage monitor")
	t := p.table([]string{"Parameter", "Value"})
	t.AppendBulk([][]string{
		{"Cycle", cycle(info.StartToken, info.MiddleToken)},
		{"Start amount", fmt.Sprintf("%s %s", info.StartAmount, info.StartToken.Symbol)},
		{"Min profit", info.MinProfitPercent.String() + "%"},
		{"Interval", info.Interval.String()},
		{"Max iterations", iterations},
		{"Slippage", slippage(info.SlippageBps)},
		{"Quote attempts", fmt.Sprintf("%d", info.MaxAttempts)},
	})
	t.Render()
	fmt.Fprintln(p.w, "Press Ctrl+C to stop")
}

// Opportunity prints the full detail of one opportunity
func (p *Printer) Opportunity(opp *types.ArbitrageOpportunity) {
	start, middle := opp.StartToken, opp.MiddleToken

	fmt.Fprintln(p.w)
	fmt.Fprintln(p.w, "ARBITRAGE OPPORTUNITY FOUND")
	fmt.Fprintln(p.w, rule)
	fmt.Fprintf(p.w, "Route: %s\n\n", cycle(start, middle))

	t := p.table([]string{"", "Amount"})
	t.AppendBulk([][]string{
		{"Start", amount(opp.StartAmount(), start)},
		{"Middle", amount(opp.MiddleAmount(), middle)},
		{"Final", amount(opp.FinalAmount(), start)},
		{"Profit", signed(opp.ProfitAmount(), int32(start.Decimals)) + " " + start.Symbol},
		{"Profit %", signed(opp.ProfitPercent, 4) + "%"},
		{"Fees (stable)", "~$" + opp.TotalFeesStable.StringFixed(6)},
	})
	t.Render()

	fmt.Fprintf(p.w, "\n1) %s -> %s\n", start.Symbol, middle.Symbol)
	p.Route(opp.FirstQuote)
	fmt.Fprintf(p.w, "\n2) %s -> %s\n", middle.Symbol, start.Symbol)
	p.Route(opp.SecondQuote)

	fmt.Fprintf(p.w, "\nDetected at: %s\n", opp.DetectedAt.UTC().Format(time.RFC3339Nano))
	fmt.Fprintln(p.w, rule)
}

// Route prints the legs of q, its venue distribution and fees
func (p *Printer) Route(q *types.Quote) {
	if q == nil || len(q.Route) == 0 {
		fmt.Fprintln(p.w, "  No route information")
		return
	}

	t := p.table([]string{"Venue", "Share", "In", "Out", "Fee"})
	for _, leg := range q.Route {
		fee := "-"
		if leg.HasFee() {
			fee = p.native(*leg.FeeAmountNative, *leg.FeeMint)
		}
		t.Append([]string{
			leg.Label(),
			fmt.Sprintf("%g%%", leg.PercentOfRoute),
			p.native(leg.InAmountNative, leg.InputMint),
			p.native(leg.OutAmountNative, leg.OutputMint),
			fee,
		})
	}
	t.Render()

	shares := q.VenueShares()
	parts := make([]string, 0, len(shares))
	for _, s := range shares {
		parts = append(parts, fmt.Sprintf("%s %g%%", s.Label, s.Percent))
	}
	fmt.Fprintf(p.w, "  Distribution: %s\n", strings.Join(parts, ", "))

	if fees := p.fees.FeesByMint(q); len(fees) > 0 {
		parts = parts[:0]
		for _, f := range fees {
			parts = append(parts, fmt.Sprintf("%s %s", f.Amount, p.symbol(f.Mint)))
		}
		fmt.Fprintf(p.w, "  Fees: %s\n", strings.Join(parts, ", "))
	}
}

// Quote prints a single quote with its exchange rate
func (p *Printer) Quote(q *types.Quote, in, out types.TokenInfo) {
	inAmount, _ := q.InAmount()
	outAmount, _ := q.OutAmount()
	inHuman, outHuman := in.ToHuman(inAmount), out.ToHuman(outAmount)

	rate := "-"
	if inHuman.IsPositive() {
		rate = fmt.Sprintf("1 %s = %s %s", in.Symbol, outHuman.DivRound(inHuman, int32(out.Decimals)), out.Symbol)
	}

	t := p.table([]string{"", "Value"})
	t.AppendBulk([][]string{
		{"Pair", fmt.Sprintf("%s -> %s", in.Symbol, out.Symbol)},
		{"In", amount(inHuman, in)},
		{"Out", amount(outHuman, out)},
		{"Rate", rate},
		{"Price impact", q.PriceImpactPercent + "%"},
		{"Slippage", slippage(q.SlippageBps)},
		{"Context slot", fmt.Sprintf("%d", q.ContextSlot)},
		{"Server time", fmt.Sprintf("%.3fs", q.RequestDurationSeconds)},
	})
	t.Render()
	p.Route(q)
}

// Price prints one watched price with its change against the previous one
func (p *Printer) Price(pt arbitrage.PricePoint, in, out types.TokenInfo) {
	change := ""
	if pt.HasPrevious {
		change = fmt.Sprintf(" (%s%%)", signed(pt.ChangePercent, 4))
	}
	fmt.Fprintf(p.w, "[%d] %s  1 %s = %s %s%s\n",
		pt.Iteration, pt.ObservedAt.UTC().Format(time.RFC3339), in.Symbol, pt.Price, out.Symbol, change)
}

// Prices prints the kept price history, oldest first
func (p *Printer) Prices(prices []arbitrage.PricePoint, in, out types.TokenInfo) {
	fmt.Fprintln(p.w)
	fmt.Fprintf(p.w, "Price watch finished, last %d prices:\n", len(prices))

	t := p.table([]string{"#", "Observed", "Price (" + out.Symbol + "/" + in.Symbol + ")", "Change %"})
	for _, pt := range prices {
		change := "-"
		if pt.HasPrevious {
			change = signed(pt.ChangePercent, 4)
		}
		t.Append([]string{
			fmt.Sprintf("%d", pt.Iteration),
			pt.ObservedAt.UTC().Format(time.RFC3339),
			pt.Price.String(),
			change,
		})
	}
	t.Render()
}

// Summary prints the end-of-run counters and recent opportunities
func (p *Printer) Summary(iterations int64, snap metrics.Snapshot, recent []*types.ArbitrageOpportunity) {
	fmt.Fprintln(p.w)
	fmt.Fprintf(p.w, "Arbitrage monitor finished after %d iterations\n", iterations)

	t := p.table([]string{"Result", "Count"})
	t.AppendBulk([][]string{
		{"Opportunities", fmt.Sprintf("%d", snap.Opportunities)},
		{"Below threshold", fmt.Sprintf("%d", snap.BelowThreshold)},
		{"No quote", fmt.Sprintf("%d", snap.NoQuote)},
		{"Failed iterations", fmt.Sprintf("%d", snap.IterationFailures)},
	})
	t.Render()

	if len(recent) == 0 {
		return
	}

	fmt.Fprintln(p.w, "Recent opportunities:")
	h := p.table([]string{"Detected", "Route", "Start", "Final", "Profit %", "Fees"})
	for _, o := range recent {
		h.Append([]string{
			o.DetectedAt.UTC().Format(time.RFC3339),
			cycle(o.StartToken, o.MiddleToken),
			amount(o.StartAmount(), o.StartToken),
			amount(o.FinalAmount(), o.StartToken),
			signed(o.ProfitPercent, 4),
			"~$" + o.TotalFeesStable.StringFixed(6),
		})
	}
	h.Render()
}

func (p *Printer) table(header []string) *tablewriter.Table {
	t := tablewriter.NewWriter(p.w)
	t.SetHeader(header)
	t.SetAutoWrapText(false)
	t.SetAutoFormatHeaders(false)
	return t
}

// native formats an integer amount string of mint in human units
func (p *Printer) native(s, mint string) string {
	v, ok := types.ParseNative(s)
	if !ok {
		return s
	}
	d := decimal.NewFromBigInt(v, -int32(p.fees.Decimals(mint)))
	return fmt.Sprintf("%s %s", d, p.symbol(mint))
}

func (p *Printer) symbol(mint string) string {
	if t, ok := p.fees.Token(mint); ok && t.Symbol != "" {
		return t.Symbol
	}
	if len(mint) > 8 {
		return mint[:4] + ".." + mint[len(mint)-4:]
	}
	return mint
}

func slippage(bps uint16) string {
	return fmt.Sprintf("%d bps (%s%%)", bps, math.BpsToPercent(bps))
}

func cycle(start, middle types.TokenInfo) string {
	return fmt.Sprintf("%s -> %s -> %s", start.Symbol, middle.Symbol, start.Symbol)
}

func amount(d decimal.Decimal, t types.TokenInfo) string {
	return d.StringFixed(int32(t.Decimals)) + " " + t.Symbol
}

func signed(d decimal.Decimal, places int32) string {
	s := d.StringFixed(places)
	if d.IsPositive() {
		return "+" + s
	}
	return s
}
