package engine

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"bytemomo/narwhal/internal/adapter/textreport"
	"bytemomo/narwhal/internal/catalog"
	"bytemomo/narwhal/internal/domain"
	"bytemomo/narwhal/internal/registry"
	"bytemomo/narwhal/internal/risk"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func ok(raw any) domain.HandlerFunc {
	return func(ctx context.Context, ec *domain.ExecutionContext) (any, error) {
		return domain.StepResult{Status: domain.StatusSuccess, Raw: raw, Summary: "done"}, nil
	}
}

func newTestEngine(t *testing.T, handlers map[domain.StepID]domain.HandlerFunc) (*Engine, *test.Hook) {
	t.Helper()
	reg := registry.New()
	for id, h := range handlers {
		require.NoError(t, reg.RegisterFunc(id, "", h))
	}
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	e := New(logrus.NewEntry(logger), reg, catalog.Default(), risk.Default())
	e.NewRunID = func() string { return "run-1" }
	return e, hook
}

func testContext() *domain.ExecutionContext {
	return domain.NewExecutionContext(domain.ContextSpec{
		Client: domain.Client{Name: "Bar Centrale", Category: "restaurant"},
		Assets: domain.Assets{
			Network: domain.NetworkAssets{Ranges: []string{"192.168.1.0/24"}, Gateways: []string{"192.168.1.1"}},
		},
	})
}

func TestRun_SingleDiscoveryStep(t *testing.T) {
	e, _ := newTestEngine(t, map[domain.StepID]domain.HandlerFunc{"network.discovery": ok("3 hosts up")})

	run, err := e.Run(context.Background(), domain.Workflow{Steps: []domain.StepID{"network.discovery"}}, testContext())
	require.NoError(t, err)

	assert.Equal(t, []string{"T1046", "T1016"}, run.MitreObserved)
	assert.Equal(t, 2, run.RiskScore.Score)
	assert.Equal(t, domain.LevelNone, run.RiskScore.Level)
	assert.Equal(t, map[string]int{"Discovery": 1}, run.RiskScore.Breakdown)

	res, found := run.Results.Get("network.discovery")
	require.True(t, found)
	assert.Equal(t, domain.StatusSuccess, res.Status)
	assert.Equal(t, "run-1", run.RunID)
}

func TestRun_BackupCheckScoresLow(t *testing.T) {
	e, _ := newTestEngine(t, map[domain.StepID]domain.HandlerFunc{"compliance.backup_check": ok(nil)})

	run, err := e.Run(context.Background(), domain.Workflow{Steps: []domain.StepID{"compliance.backup_check"}}, testContext())
	require.NoError(t, err)

	assert.Equal(t, []string{"T1490"}, run.MitreObserved)
	assert.Equal(t, 10, run.RiskScore.Score)
	assert.Equal(t, domain.LevelLow, run.RiskScore.Level)
}

func TestRun_FailingHandlerIsIsolated(t *testing.T) {
	e, hook := newTestEngine(t, map[domain.StepID]domain.HandlerFunc{
		"network.discovery": ok("up"),
		"web.web_enum": func(ctx context.Context, ec *domain.ExecutionContext) (any, error) {
			return nil, errors.New("dns timeout")
		},
		"network.egress": ok("reachable"),
	})

	wf := domain.Workflow{Steps: []domain.StepID{"network.discovery", "web.web_enum", "network.egress"}}
	run, err := e.Run(context.Background(), wf, testContext())
	require.NoError(t, err)

	failed, _ := run.Results.Get("web.web_enum")
	assert.Equal(t, domain.StepResult{Status: domain.StatusError, Raw: "", Summary: "Step failed: dns timeout"}, failed)

	egress, _ := run.Results.Get("network.egress")
	assert.Equal(t, domain.StatusSuccess, egress.Status)

	assert.Equal(t, []string{"T1046", "T1016", "T1071", "T1041"}, run.MitreObserved)
	assert.NotContains(t, run.MitreObserved, "T1190")

	var warned bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && entry.Data["step"] == domain.StepID("web.web_enum") {
			warned = true
		}
	}
	assert.True(t, warned, "expected a warning for the failed step")
}

func TestRun_EmptyWorkflow(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	run, err := e.Run(context.Background(), domain.Workflow{}, testContext())
	require.NoError(t, err)

	assert.Equal(t, 0, run.Results.Len())
	assert.Empty(t, run.MitreObserved)
	assert.Equal(t, 0, run.RiskScore.Score)
	assert.Equal(t, domain.LevelNone, run.RiskScore.Level)

	b, err := json.Marshal(run)
	require.NoError(t, err)
	js := string(b)
	assert.Contains(t, js, `"results":{}`)
	assert.Contains(t, js, `"mitre_observed":[]`)
	assert.Contains(t, js, `"breakdown":{}`)
}

func TestRun_UnresolvableSteps(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	wf := domain.Workflow{Steps: []domain.StepID{"foo.bar", "exploits.metasploit_check", "nodot"}}
	run, err := e.Run(context.Background(), wf, testContext())
	require.NoError(t, err)

	require.Equal(t, 3, run.Results.Len())
	run.Results.Each(func(id domain.StepID, res domain.StepResult) {
		assert.Equal(t, domain.StatusError, res.Status, id)
		assert.True(t, strings.HasPrefix(res.Summary, "Step failed: "), res.Summary)
	})
	assert.Empty(t, run.MitreObserved)
	assert.Equal(t, 0, run.RiskScore.Score)
	assert.Equal(t, domain.LevelNone, run.RiskScore.Level)
	for _, rec := range run.Executions {
		assert.Equal(t, domain.StateFailed, rec.State)
	}
}

func TestRun_UncataloguedStepContributesNothing(t *testing.T) {
	e, _ := newTestEngine(t, map[domain.StepID]domain.HandlerFunc{"custom.inventory": ok("x")})

	run, err := e.Run(context.Background(), domain.Workflow{Steps: []domain.StepID{"custom.inventory"}}, testContext())
	require.NoError(t, err)

	res, _ := run.Results.Get("custom.inventory")
	assert.Equal(t, domain.StatusSuccess, res.Status)
	assert.Empty(t, run.MitreObserved)
	assert.Equal(t, 0, run.RiskScore.Score)
}

func TestRun_DuplicateStepsLastWriteWins(t *testing.T) {
	calls := 0
	e, _ := newTestEngine(t, map[domain.StepID]domain.HandlerFunc{
		"network.discovery": func(ctx context.Context, ec *domain.ExecutionContext) (any, error) {
			calls++
			return calls, nil
		},
		"web.web_enum": ok("site"),
	})

	wf := domain.Workflow{Steps: []domain.StepID{"network.discovery", "web.web_enum", "network.discovery"}}
	run, err := e.Run(context.Background(), wf, testContext())
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.Equal(t, []domain.StepID{"network.discovery", "web.web_enum"}, run.Results.IDs())
	res, _ := run.Results.Get("network.discovery")
	assert.Equal(t, domain.StepResult{Status: domain.StatusSuccess, Raw: "2", Summary: ""}, res)
	assert.Len(t, run.Executions, 3)
	assert.Equal(t, []string{"T1046", "T1016", "T1190"}, run.MitreObserved)
	assert.Equal(t, map[string]int{"Discovery": 2}, run.RiskScore.Breakdown)
}

func TestRun_PanicBecomesFailure(t *testing.T) {
	e, _ := newTestEngine(t, map[domain.StepID]domain.HandlerFunc{
		"pos.pos_enum": func(ctx context.Context, ec *domain.ExecutionContext) (any, error) {
			panic("kaboom")
		},
		"endpoint.os_check": ok("linux"),
	})

	wf := domain.Workflow{Steps: []domain.StepID{"pos.pos_enum", "endpoint.os_check"}}
	run, err := e.Run(context.Background(), wf, testContext())
	require.NoError(t, err)

	res, _ := run.Results.Get("pos.pos_enum")
	assert.Equal(t, "Step failed: panic: kaboom", res.Summary)
	assert.Equal(t, []string{"T1082"}, run.MitreObserved)
}

func TestRun_StepTimeout(t *testing.T) {
	e, _ := newTestEngine(t, map[domain.StepID]domain.HandlerFunc{
		"network.portscan": func(ctx context.Context, ec *domain.ExecutionContext) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})
	e.StepTimeout = 10 * time.Millisecond

	run, err := e.Run(context.Background(), domain.Workflow{Steps: []domain.StepID{"network.portscan"}}, testContext())
	require.NoError(t, err)

	res, _ := run.Results.Get("network.portscan")
	assert.Equal(t, "Step failed: context deadline exceeded", res.Summary)
}

func TestRun_HandlerStatusErrorStillObserved(t *testing.T) {
	e, _ := newTestEngine(t, map[domain.StepID]domain.HandlerFunc{
		"compliance.backup_check": func(ctx context.Context, ec *domain.ExecutionContext) (any, error) {
			return map[string]any{"status": "error", "summary": "no backup configured"}, nil
		},
	})

	run, err := e.Run(context.Background(), domain.Workflow{Steps: []domain.StepID{"compliance.backup_check"}}, testContext())
	require.NoError(t, err)

	res, _ := run.Results.Get("compliance.backup_check")
	assert.Equal(t, domain.StatusError, res.Status)
	assert.Equal(t, "no backup configured", res.Summary)
	assert.Equal(t, []string{"T1490"}, run.MitreObserved)
}

type countingModel struct {
	calls int
	err   error
}

func (m *countingModel) Score(obs domain.Observation, results *domain.StepResults) (domain.RiskScore, error) {
	m.calls++
	return domain.RiskScore{Level: domain.LevelNone}, m.err
}

func TestRun_RiskModelCalledOnce(t *testing.T) {
	e, _ := newTestEngine(t, map[domain.StepID]domain.HandlerFunc{"network.discovery": ok("")})
	model := &countingModel{}
	e.Risk = model

	wf := domain.Workflow{Steps: []domain.StepID{"network.discovery", "network.discovery", "foo.bar"}}
	run, err := e.Run(context.Background(), wf, testContext())
	require.NoError(t, err)
	assert.Equal(t, 1, model.calls)
	assert.NotNil(t, run.RiskScore.Breakdown)
}

func TestRun_RiskModelErrorPropagates(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	e.Risk = &countingModel{err: errors.New("weights unavailable")}

	_, err := e.Run(context.Background(), domain.Workflow{Steps: []domain.StepID{"foo.bar"}}, testContext())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weights unavailable")
}

type failingRenderer struct{}

func (failingRenderer) Render(*domain.RunResult, *domain.ExecutionContext) (string, error) {
	return "", errors.New("template broken")
}

type stubRenderer struct{ seen *domain.RunResult }

func (s *stubRenderer) Render(run *domain.RunResult, ec *domain.ExecutionContext) (string, error) {
	s.seen = run
	return "report for " + ec.Client().Name, nil
}

func TestRun_Renderer(t *testing.T) {
	e, _ := newTestEngine(t, map[domain.StepID]domain.HandlerFunc{"network.discovery": ok("")})
	r := &stubRenderer{}
	e.Renderer = r

	run, err := e.Run(context.Background(), domain.Workflow{Steps: []domain.StepID{"network.discovery"}}, testContext())
	require.NoError(t, err)
	assert.Equal(t, "report for Bar Centrale", run.Report)
	require.NotNil(t, r.seen)
	assert.Equal(t, 2, r.seen.RiskScore.Score, "renderer must see the final score")

	e.Renderer = failingRenderer{}
	_, err = e.Run(context.Background(), domain.Workflow{Steps: []domain.StepID{"network.discovery"}}, testContext())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "template broken")
}

func TestRun_UnencodableRawKeepsRun(t *testing.T) {
	e, _ := newTestEngine(t, map[domain.StepID]domain.HandlerFunc{
		"network.discovery": ok("3 hosts up"),
		"network.egress": func(ctx context.Context, ec *domain.ExecutionContext) (any, error) {
			return map[string]any{"loss_ratio": math.NaN()}, nil
		},
	})
	e.Renderer = textreport.Renderer{}

	wf := domain.Workflow{Steps: []domain.StepID{"network.discovery", "network.egress"}}
	run, err := e.Run(context.Background(), wf, testContext())
	require.NoError(t, err)

	discovery, found := run.Results.Get("network.discovery")
	require.True(t, found)
	assert.Equal(t, "3 hosts up", discovery.Raw)

	egress, _ := run.Results.Get("network.egress")
	assert.Equal(t, domain.StatusSuccess, egress.Status)
	assert.Equal(t, "map[loss_ratio:NaN]", egress.Raw)

	assert.Contains(t, run.Report, "[STEP] network.egress")
	assert.Equal(t, []string{"T1046", "T1016", "T1071", "T1041"}, run.MitreObserved)

	_, err = json.Marshal(run.Results)
	assert.NoError(t, err)
}

func TestRun_TacticOnlyStep(t *testing.T) {
	e, _ := newTestEngine(t, map[domain.StepID]domain.HandlerFunc{"compliance.gdpr_light": ok(nil)})

	run, err := e.Run(context.Background(), domain.Workflow{Steps: []domain.StepID{"compliance.gdpr_light"}}, testContext())
	require.NoError(t, err)

	assert.Empty(t, run.MitreObserved)
	assert.Equal(t, 0, run.RiskScore.Score)
	assert.Equal(t, domain.LevelNone, run.RiskScore.Level)
	assert.Empty(t, run.RiskScore.Breakdown)

	res, _ := run.Results.Get("compliance.gdpr_light")
	assert.Equal(t, domain.StatusSuccess, res.Status)
}

func TestRun_Targets(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ec := domain.NewExecutionContext(domain.ContextSpec{
		Assets: domain.Assets{
			Network:   domain.NetworkAssets{Ranges: []string{"10.0.0.0/24"}},
			Endpoints: domain.EndpointAssets{Workstations: []domain.Host{{IP: "10.0.0.10"}, {IP: "10.0.0.11"}}},
			POS:       domain.PosAssets{Enabled: true, List: []domain.Host{{IP: "10.0.0.50"}}},
		},
		Constraints: domain.Constraints{ExcludedAssets: []string{"10.0.0.11"}},
	})

	run, err := e.Run(context.Background(), domain.Workflow{}, ec)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.10"}, run.Targets.Endpoints)
	assert.Equal(t, []string{"10.0.0.50"}, run.Targets.POS)
	assert.Equal(t, []string{}, run.Targets.WebDomains)
	assert.Equal(t, "Unknown", run.Client.Name)
}

func TestRun_Tracing(t *testing.T) {
	e, _ := newTestEngine(t, map[domain.StepID]domain.HandlerFunc{"network.discovery": ok("")})
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	e.Tracer = tp.Tracer("test")

	_, err := e.Run(context.Background(), domain.Workflow{Steps: []domain.StepID{"network.discovery", "foo.bar"}}, testContext())
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 3)
	assert.Equal(t, "step network.discovery", spans[0].Name())
	assert.Equal(t, "step foo.bar", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "workflow.run", spans[2].Name())
	assert.Equal(t, spans[2].SpanContext().SpanID(), spans[0].Parent().SpanID())
}

func TestRun_NilContext(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	_, err := e.Run(context.Background(), domain.Workflow{}, nil)
	assert.Error(t, err)
}
