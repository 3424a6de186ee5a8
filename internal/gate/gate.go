// Package gate evaluates CEL conditions over a finished run so CI jobs can
// fail on risk thresholds or specific observed techniques.
package gate

import (
	"errors"
	"fmt"

	"github.com/google/cel-go/cel"

	"bytemomo/narwhal/internal/domain"
)

var ErrNotBool = errors.New("gate expression must evaluate to bool")

// Gate is a compiled condition. Expressions see:
//
//	score     int                 final risk score
//	level     string              NONE, LOW, MEDIUM, HIGH, CRITICAL
//	observed  list(string)        techniques in first-seen order
//	breakdown map(string, int)    tactic occurrence counts
//	failed    int                 steps with status "error"
//	statuses  map(string, string) step id to status
type Gate struct {
	expr string
	prg  cel.Program
}

func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("score", cel.IntType),
		cel.Variable("level", cel.StringType),
		cel.Variable("observed", cel.ListType(cel.StringType)),
		cel.Variable("breakdown", cel.MapType(cel.StringType, cel.IntType)),
		cel.Variable("failed", cel.IntType),
		cel.Variable("statuses", cel.MapType(cel.StringType, cel.StringType)),
	)
}

func Compile(expr string) (*Gate, error) {
	env, err := newEnv()
	if err != nil {
		return nil, fmt.Errorf("gate env: %w", err)
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile %q: %w", expr, iss.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("compile %q: %w (got %s)", expr, ErrNotBool, ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", expr, err)
	}
	return &Gate{expr: expr, prg: prg}, nil
}

func (g *Gate) String() string { return g.expr }

// Evaluate reports whether the condition holds for run.
func (g *Gate) Evaluate(run *domain.RunResult) (bool, error) {
	out, _, err := g.prg.Eval(Activation(run))
	if err != nil {
		return false, fmt.Errorf("evaluate %q: %w", g.expr, err)
	}
	tripped, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("evaluate %q: %w", g.expr, ErrNotBool)
	}
	return tripped, nil
}

// Activation builds the variable bindings for run.
func Activation(run *domain.RunResult) map[string]any {
	breakdown := make(map[string]int64, len(run.RiskScore.Breakdown))
	for tactic, n := range run.RiskScore.Breakdown {
		breakdown[tactic] = int64(n)
	}
	statuses := map[string]string{}
	failed := 0
	if run.Results != nil {
		run.Results.Each(func(id domain.StepID, res domain.StepResult) {
			statuses[id.String()] = string(res.Status)
		})
		failed = run.Results.Failed()
	}
	observed := run.MitreObserved
	if observed == nil {
		observed = []string{}
	}
	return map[string]any{
		"score":     int64(run.RiskScore.Score),
		"level":     string(run.RiskScore.Level),
		"observed":  observed,
		"breakdown": breakdown,
		"failed":    int64(failed),
		"statuses":  statuses,
	}
}
