package sequence

import (
	"context"
	"fmt"

	"github.com/PaesslerAG/gval"
	"github.com/PaesslerAG/jsonpath"

	"github.com/mxrc-robotics/mxrc/internal/action"
)

// ConditionProvider evaluates a branch condition string against an
// ExecutionContext's current values (§4.8, §9 IConditionProvider).
type ConditionProvider interface {
	Evaluate(ctx context.Context, condition string, ec *action.ExecutionContext) (bool, error)
}

// GvalConditionProvider evaluates conditions as gval expressions, with a
// jsonpath extension so conditions can reach into nested result/context
// values (e.g. `$.attempts > 2`).
type GvalConditionProvider struct {
	lang gval.Language
}

func NewGvalConditionProvider() *GvalConditionProvider {
	return &GvalConditionProvider{lang: gval.Full(jsonpath.Language())}
}

func (p *GvalConditionProvider) Evaluate(ctx context.Context, condition string, ec *action.ExecutionContext) (bool, error) {
	if condition == "" {
		return false, nil
	}
	vars := ec.Snapshot()
	value, err := p.lang.Evaluate(condition, vars)
	if err != nil {
		return false, fmt.Errorf("sequence: condition %q: %w", condition, err)
	}
	b, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("sequence: condition %q did not evaluate to a boolean (got %T)", condition, value)
	}
	return b, nil
}
