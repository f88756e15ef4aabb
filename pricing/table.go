package pricing

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/xraph/creditledger/entry"
	"github.com/xraph/creditledger/types"
)

const (
	tokensPerMillion = 1_000_000
	basisPoints      = 10_000
)

// ModelRate is a model's price. Token rates are nanos per million tokens;
// PerUnit is nanos per discrete unit.
type ModelRate struct {
	InputPerMillion  int64 `json:"input_per_million" yaml:"input_per_million"`
	OutputPerMillion int64 `json:"output_per_million" yaml:"output_per_million"`
	PerUnit          int64 `json:"per_unit" yaml:"per_unit"`
}

// Table is a rate-table Oracle keyed by supplier and model (or tool).
// It is safe for concurrent use.
type Table struct {
	mu        sync.RWMutex
	models    map[string]ModelRate
	tools     map[string]int64
	markupBPS int64
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{
		models: make(map[string]ModelRate),
		tools:  make(map[string]int64),
	}
}

// SetModel registers the rate for supplier/model.
func (t *Table) SetModel(supplier, model string, rate ModelRate) *Table {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.models[rateKey(supplier, model)] = rate
	return t
}

// SetTool registers the per-call price of a tool, in nanos.
func (t *Table) SetTool(supplier, tool string, perCall int64) *Table {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tools[rateKey(supplier, tool)] = perCall
	return t
}

// SetMarkup applies a markup, in basis points, to provider-reported costs.
func (t *Table) SetMarkup(bps int64) *Table {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.markupBPS = bps
	return t
}

// Price implements Oracle.
func (t *Table) Price(_ context.Context, u Usage) (int64, error) {
	if u.InputTokens < 0 || u.OutputTokens < 0 || u.Units < 0 {
		return 0, fmt.Errorf("%w: negative quantity", ErrInvalidUsage)
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if u.ReportedCost != nil {
		if *u.ReportedCost < 0 {
			return 0, fmt.Errorf("%w: negative reported cost", ErrInvalidUsage)
		}
		cost, ok := markup(*u.ReportedCost, t.markupBPS)
		if !ok {
			return 0, fmt.Errorf("%w: reported cost %d overflows with markup", ErrInvalidUsage, *u.ReportedCost)
		}
		return cost, nil
	}

	if u.Source == entry.SourceToolExecution && u.ToolCall != "" {
		perCall, ok := t.tools[rateKey(u.Supplier, u.ToolCall)]
		if !ok {
			return 0, fmt.Errorf("%w: %s/%s", ErrUnknownTool, u.Supplier, u.ToolCall)
		}
		calls := u.Units
		if calls == 0 {
			calls = 1
		}
		cost, ok := mulChecked(calls, perCall)
		if !ok {
			return 0, fmt.Errorf("%w: %d calls of %s/%s overflow", ErrInvalidUsage, calls, u.Supplier, u.ToolCall)
		}
		return cost, nil
	}

	rate, ok := t.models[rateKey(u.Supplier, u.Model)]
	if !ok {
		return 0, fmt.Errorf("%w: %s/%s", ErrUnknownModel, u.Supplier, u.Model)
	}
	tokens, ok := tokenCost(u.InputTokens, rate.InputPerMillion, u.OutputTokens, rate.OutputPerMillion)
	if !ok {
		return 0, fmt.Errorf("%w: token cost of %s/%s overflows", ErrInvalidUsage, u.Supplier, u.Model)
	}
	units, ok := mulChecked(u.Units, rate.PerUnit)
	if !ok {
		return 0, fmt.Errorf("%w: unit cost of %s/%s overflows", ErrInvalidUsage, u.Supplier, u.Model)
	}
	cost, ok := addChecked(tokens, units)
	if !ok {
		return 0, fmt.Errorf("%w: cost of %s/%s overflows", ErrInvalidUsage, u.Supplier, u.Model)
	}
	return cost, nil
}

// markup applies bps to cost, rounding up. The cost is split at the basis
// point boundary so only the quotient term can overflow.
func markup(cost, bps int64) (int64, bool) {
	factor, ok := addChecked(basisPoints, bps)
	if !ok {
		return 0, false
	}
	whole, ok1 := mulChecked(cost/basisPoints, factor)
	rest, ok2 := mulChecked(cost%basisPoints, factor)
	if !ok1 || !ok2 {
		return 0, false
	}
	return addChecked(whole, types.CeilDiv(rest, basisPoints))
}

// tokenCost sums both sides exactly and rounds the combined sub-nano
// remainder up once. It reports false on overflow.
func tokenCost(in, inRate, out, outRate int64) (int64, bool) {
	wholeIn, ok1 := mulChecked(in/tokensPerMillion, inRate)
	wholeOut, ok2 := mulChecked(out/tokensPerMillion, outRate)
	fracIn, ok3 := mulChecked(in%tokensPerMillion, inRate)
	fracOut, ok4 := mulChecked(out%tokensPerMillion, outRate)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return 0, false
	}
	whole, ok1 := addChecked(wholeIn, wholeOut)
	frac, ok2 := addChecked(fracIn, fracOut)
	if !ok1 || !ok2 {
		return 0, false
	}
	return addChecked(whole, types.CeilDiv(frac, tokensPerMillion))
}

func mulChecked(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	c := a * b
	if c/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	return c, true
}

func addChecked(a, b int64) (int64, bool) {
	c := a + b
	if (b > 0 && c < a) || (b < 0 && c > a) {
		return 0, false
	}
	return c, true
}

func rateKey(supplier, name string) string {
	return supplier + "/" + name
}
