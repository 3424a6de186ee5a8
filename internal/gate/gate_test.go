package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bytemomo/narwhal/internal/domain"
)

func sampleRun() *domain.RunResult {
	results := domain.NewStepResults()
	results.Set("network.discovery", domain.StepResult{Status: domain.StatusSuccess, Raw: "up"})
	results.Set("web.tls_enum", domain.StepResult{Status: domain.StatusError, Raw: "Step failed: boom"})
	return &domain.RunResult{
		Results:       results,
		MitreObserved: []string{"T1046", "T1595"},
		RiskScore: domain.RiskScore{
			Score:     22,
			Level:     domain.LevelMedium,
			Breakdown: map[string]int{"Discovery": 1, "Reconnaissance": 1},
		},
	}
}

func TestGate_Evaluate(t *testing.T) {
	run := sampleRun()
	cases := []struct {
		expr string
		want bool
	}{
		{`score >= 15`, true},
		{`score >= 30`, false},
		{`level == "MEDIUM"`, true},
		{`level in ["HIGH", "CRITICAL"]`, false},
		{`"T1046" in observed`, true},
		{`observed.exists(t, t.startsWith("T1021"))`, false},
		{`has(breakdown.Discovery) && breakdown["Discovery"] > 0`, true},
		{`failed > 0`, true},
		{`statuses["web.tls_enum"] == "error"`, true},
		{`size(statuses) == 2 && failed == 0`, false},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			g, err := Compile(tc.expr)
			require.NoError(t, err)
			got, err := g.Evaluate(run)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	_, err := Compile(`score +`)
	require.Error(t, err)

	_, err = Compile(`score + 1`)
	require.ErrorIs(t, err, ErrNotBool)

	_, err = Compile(`unknown_var > 3`)
	require.Error(t, err)
}

func TestEvaluate_EmptyRun(t *testing.T) {
	g, err := Compile(`failed == 0 && size(observed) == 0 && score == 0`)
	require.NoError(t, err)
	got, err := g.Evaluate(&domain.RunResult{})
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEvaluate_MissingKeyIsError(t *testing.T) {
	g, err := Compile(`breakdown["Impact"] > 0`)
	require.NoError(t, err)
	_, err = g.Evaluate(sampleRun())
	assert.Error(t, err)
}
