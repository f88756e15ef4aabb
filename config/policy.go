// Package config loads the billing policy file: model and tool prices plus
// spending limits. Money values are decimal unit strings such as "2.50" and
// are parsed into nanos without floating point.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/xraph/creditledger/pricing"
	"github.com/xraph/creditledger/spendlimit"
	"github.com/xraph/creditledger/types"
)

// Policy is the top-level policy document.
type Policy struct {
	Pricing Pricing `yaml:"pricing"`
	Limits  Limits  `yaml:"limits"`
}

// Pricing lists model and tool rates.
type Pricing struct {
	// MarkupBPS is applied to provider-reported costs, in basis points.
	MarkupBPS int64       `yaml:"markup_bps"`
	Models    []ModelRate `yaml:"models"`
	Tools     []ToolRate  `yaml:"tools"`
}

// ModelRate prices one supplier model. Token rates are per million tokens.
type ModelRate struct {
	Supplier         string `yaml:"supplier"`
	Model            string `yaml:"model"`
	InputPerMillion  string `yaml:"input_per_million"`
	OutputPerMillion string `yaml:"output_per_million"`
	PerUnit          string `yaml:"per_unit"`
}

// ToolRate prices one tool call.
type ToolRate struct {
	Supplier string `yaml:"supplier"`
	Tool     string `yaml:"tool"`
	PerCall  string `yaml:"per_call"`
}

// Limits configures the spending limit gate. Empty caps are unlimited.
type Limits struct {
	WorkspacePerRequest string            `yaml:"workspace_per_request"`
	AgentPerRequest     string            `yaml:"agent_per_request"`
	Workspaces          map[string]string `yaml:"workspaces"`
	Agents              map[string]string `yaml:"agents"`
	BalanceFloor        string            `yaml:"balance_floor"`
}

// Load reads and parses a YAML policy file.
// Environment variables in the format ${VAR} are expanded before parsing.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("creditledger: read policy: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates a YAML policy document.
func Parse(data []byte) (*Policy, error) {
	expanded := os.ExpandEnv(string(data))

	var p Policy
	if err := yaml.Unmarshal([]byte(expanded), &p); err != nil {
		return nil, fmt.Errorf("creditledger: parse policy: %w", err)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the policy for required fields and parseable amounts.
func (p *Policy) Validate() error {
	if p.Pricing.MarkupBPS < 0 {
		return fmt.Errorf("creditledger: policy: pricing.markup_bps must not be negative")
	}

	seen := make(map[string]bool, len(p.Pricing.Models))
	for i, m := range p.Pricing.Models {
		if m.Supplier == "" || m.Model == "" {
			return fmt.Errorf("creditledger: policy: pricing.models[%d]: supplier and model are required", i)
		}
		key := m.Supplier + "/" + m.Model
		if seen[key] {
			return fmt.Errorf("creditledger: policy: duplicate model %q", key)
		}
		seen[key] = true
		if _, err := m.rate(); err != nil {
			return fmt.Errorf("creditledger: policy: pricing.models[%d] (%s): %w", i, key, err)
		}
	}

	for i, t := range p.Pricing.Tools {
		if t.Supplier == "" || t.Tool == "" {
			return fmt.Errorf("creditledger: policy: pricing.tools[%d]: supplier and tool are required", i)
		}
		if _, err := nonNegative(t.PerCall); err != nil {
			return fmt.Errorf("creditledger: policy: pricing.tools[%d] (%s/%s): %w", i, t.Supplier, t.Tool, err)
		}
	}

	if _, err := p.Limits.rules(); err != nil {
		return fmt.Errorf("creditledger: policy: limits: %w", err)
	}
	return nil
}

// PricingTable builds the rate table described by the policy.
func (p *Policy) PricingTable() (*pricing.Table, error) {
	t := pricing.NewTable().SetMarkup(p.Pricing.MarkupBPS)
	for _, m := range p.Pricing.Models {
		rate, err := m.rate()
		if err != nil {
			return nil, fmt.Errorf("creditledger: policy: model %s/%s: %w", m.Supplier, m.Model, err)
		}
		t.SetModel(m.Supplier, m.Model, rate)
	}
	for _, tr := range p.Pricing.Tools {
		perCall, err := nonNegative(tr.PerCall)
		if err != nil {
			return nil, fmt.Errorf("creditledger: policy: tool %s/%s: %w", tr.Supplier, tr.Tool, err)
		}
		t.SetTool(tr.Supplier, tr.Tool, perCall)
	}
	return t, nil
}

// SpendingRules builds the spending limit gate. balances is required when
// a balance floor is configured.
func (p *Policy) SpendingRules(balances spendlimit.BalanceReader) (*spendlimit.Rules, error) {
	r, err := p.Limits.rules()
	if err != nil {
		return nil, fmt.Errorf("creditledger: policy: limits: %w", err)
	}
	if r.BalanceFloor != nil {
		if balances == nil {
			return nil, fmt.Errorf("creditledger: policy: balance_floor requires a balance reader")
		}
		r.Balances = balances
	}
	return r, nil
}

func (m ModelRate) rate() (pricing.ModelRate, error) {
	in, err := nonNegative(m.InputPerMillion)
	if err != nil {
		return pricing.ModelRate{}, fmt.Errorf("input_per_million: %w", err)
	}
	out, err := nonNegative(m.OutputPerMillion)
	if err != nil {
		return pricing.ModelRate{}, fmt.Errorf("output_per_million: %w", err)
	}
	unit, err := nonNegative(m.PerUnit)
	if err != nil {
		return pricing.ModelRate{}, fmt.Errorf("per_unit: %w", err)
	}
	return pricing.ModelRate{InputPerMillion: in, OutputPerMillion: out, PerUnit: unit}, nil
}

func (l Limits) rules() (*spendlimit.Rules, error) {
	r := &spendlimit.Rules{}

	var err error
	if r.WorkspacePerRequest, err = nonNegative(l.WorkspacePerRequest); err != nil {
		return nil, fmt.Errorf("workspace_per_request: %w", err)
	}
	if r.AgentPerRequest, err = nonNegative(l.AgentPerRequest); err != nil {
		return nil, fmt.Errorf("agent_per_request: %w", err)
	}
	if r.Workspaces, err = overrides(l.Workspaces); err != nil {
		return nil, fmt.Errorf("workspaces: %w", err)
	}
	if r.Agents, err = overrides(l.Agents); err != nil {
		return nil, fmt.Errorf("agents: %w", err)
	}

	if l.BalanceFloor != "" {
		floor, err := types.ParseUnits(l.BalanceFloor)
		if err != nil {
			return nil, fmt.Errorf("balance_floor: %w", err)
		}
		r.BalanceFloor = &floor
	}
	return r, nil
}

func overrides(in map[string]string) (map[string]int64, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[string]int64, len(in))
	for k, v := range in {
		n, err := nonNegative(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}

// nonNegative parses an optional unit string. Empty is zero.
func nonNegative(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := types.ParseUnits(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: %q is negative", types.ErrInvalidAmount, s)
	}
	return n, nil
}
