package policy

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/checker/decls"

	"github.com/vuhp/cloudthrift/pkg/waste"
)

// Filter is a compiled CEL expression evaluated against each opportunity.
// Example: savings > 50.0 && category == "idle" && region == "us-east-1".
type Filter struct {
	expr string
	prg  cel.Program
}

// NewFilter compiles the expression. The variable set mirrors the
// opportunity fields a report shows.
func NewFilter(expr string) (*Filter, error) {
	env, err := cel.NewEnv(
		cel.Declarations(
			decls.NewVar("id", decls.String),
			decls.NewVar("name", decls.String),
			decls.NewVar("provider", decls.String),
			decls.NewVar("region", decls.String),
			decls.NewVar("resource_type", decls.String),
			decls.NewVar("category", decls.String),
			decls.NewVar("confidence", decls.String),
			decls.NewVar("savings", decls.Double),
			decls.NewVar("cost", decls.Double),
			decls.NewVar("metadata", decls.NewMapType(decls.String, decls.String)),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid filter expression: %w", issues.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("filter program creation error: %w", err)
	}

	return &Filter{expr: expr, prg: prg}, nil
}

func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.expr
}

// Match evaluates the filter for one opportunity. The expression must
// produce a boolean.
func (f *Filter) Match(opp waste.Opportunity) (bool, error) {
	out, _, err := f.prg.Eval(map[string]interface{}{
		"id":            opp.ResourceID,
		"name":          opp.ResourceName,
		"provider":      string(opp.Provider),
		"region":        opp.Region,
		"resource_type": opp.ResourceType,
		"category":      string(opp.Category),
		"confidence":    string(opp.Confidence),
		"savings":       opp.EstimatedMonthlySavings,
		"cost":          opp.CurrentMonthlyCost,
		"metadata":      opp.Metadata,
	})
	if err != nil {
		return false, fmt.Errorf("filter evaluation failed: %w", err)
	}

	match, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter %q does not evaluate to a boolean", f.expr)
	}
	return match, nil
}

// Apply keeps the opportunities the filter matches, preserving order. A nil
// filter keeps everything.
func (f *Filter) Apply(opps []waste.Opportunity) ([]waste.Opportunity, error) {
	if f == nil {
		return opps, nil
	}

	kept := make([]waste.Opportunity, 0, len(opps))
	for _, opp := range opps {
		match, err := f.Match(opp)
		if err != nil {
			return nil, err
		}
		if match {
			kept = append(kept, opp)
		}
	}
	return kept, nil
}
