package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"bytemomo/narwhal/internal/domain"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "bytemomo/narwhal/internal/engine"

type Resolver interface {
	Resolve(id domain.StepID) (domain.Handler, error)
}

type TechniqueCatalog interface {
	LookupTechniques(id domain.StepID) []string
	LookupTactics(id domain.StepID) []string
}

type RiskModel interface {
	Score(obs domain.Observation, results *domain.StepResults) (domain.RiskScore, error)
}

// Engine runs workflows one step at a time. A step failure is recorded and
// the run moves on; only scoring and report rendering errors abort a run.
type Engine struct {
	Log      *logrus.Entry
	Registry Resolver
	Catalog  TechniqueCatalog
	Risk     RiskModel
	Renderer domain.ReportRenderer // optional

	// StepTimeout bounds the context handed to each handler. Zero disables it.
	// Handlers that ignore their context are not interrupted.
	StepTimeout time.Duration

	Tracer trace.Tracer // defaults to the global provider
	Meter  metric.Meter // defaults to the global provider

	Now      func() time.Time
	NewRunID func() string
}

func New(log *logrus.Entry, reg Resolver, cat TechniqueCatalog, model RiskModel) *Engine {
	return &Engine{
		Log:      log,
		Registry: reg,
		Catalog:  cat,
		Risk:     model,
	}
}

type instruments struct {
	steps    metric.Int64Counter
	duration metric.Float64Histogram
}

func (e *Engine) Run(ctx context.Context, wf domain.Workflow, ec *domain.ExecutionContext) (*domain.RunResult, error) {
	if ec == nil {
		return nil, errors.New("engine: nil execution context")
	}
	if e.Registry == nil || e.Catalog == nil || e.Risk == nil {
		return nil, errors.New("engine: registry, catalog and risk model are required")
	}

	run := &domain.RunResult{
		RunID:         e.runID(),
		Workflow:      wf.Name,
		Client:        ec.Client(),
		StartedAt:     e.now(),
		Results:       domain.NewStepResults(),
		Executions:    make([]domain.StepExecution, 0, len(wf.Steps)),
		MitreObserved: []string{},
	}

	log := e.logger().WithFields(logrus.Fields{
		"run_id":   run.RunID,
		"workflow": wf.Name,
		"client":   run.Client.Name,
	})

	ctx, span := e.tracer().Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("narwhal.run_id", run.RunID),
		attribute.String("narwhal.workflow", wf.Name),
		attribute.Int("narwhal.steps", len(wf.Steps)),
	))
	defer span.End()

	inst := e.instruments(log)
	log.WithField("steps", len(wf.Steps)).Info("Starting workflow")

	var tactics []string
	contributed := make(map[domain.StepID]bool)

	for i, id := range wf.Steps {
		res, rec := e.dispatch(ctx, log.WithFields(logrus.Fields{"step": id, "index": i}), inst, id, ec)
		run.Results.Set(id, res)

		if rec.State == domain.StateSucceeded {
			techs := e.Catalog.LookupTechniques(id)
			run.MitreObserved = mergeOrdered(run.MitreObserved, techs)
			rec.Techniques = techs
			// A step id adds its tactics once per run, however often it repeats.
			// Steps that observe no technique add no tactics either.
			if len(techs) > 0 && !contributed[id] {
				contributed[id] = true
				tactics = append(tactics, e.Catalog.LookupTactics(id)...)
			}
		}
		run.Executions = append(run.Executions, rec)
	}

	score, err := e.Risk.Score(domain.Observation{
		Techniques: slices.Clone(run.MitreObserved),
		Tactics:    tactics,
	}, run.Results)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "risk scoring failed")
		return nil, fmt.Errorf("score run: %w", err)
	}
	if score.Breakdown == nil {
		score.Breakdown = map[string]int{}
	}
	run.RiskScore = score
	run.Targets = TargetsOf(ec)
	run.FinishedAt = e.now()

	if e.Renderer != nil {
		report, err := e.Renderer.Render(run, ec)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "report rendering failed")
			return nil, fmt.Errorf("render report: %w", err)
		}
		run.Report = report
	}

	span.SetAttributes(
		attribute.Int("narwhal.risk.score", score.Score),
		attribute.String("narwhal.risk.level", string(score.Level)),
		attribute.Int("narwhal.failed", run.Results.Failed()),
	)
	log.WithFields(logrus.Fields{
		"score":      score.Score,
		"level":      score.Level,
		"techniques": len(run.MitreObserved),
		"failed":     run.Results.Failed(),
		"duration":   run.Duration().String(),
	}).Info("Workflow complete")

	return run, nil
}

func (e *Engine) dispatch(ctx context.Context, log *logrus.Entry, inst instruments, id domain.StepID, ec *domain.ExecutionContext) (domain.StepResult, domain.StepExecution) {
	rec := domain.StepExecution{Step: id, State: domain.StatePending, StartedAt: e.now()}

	ctx, span := e.tracer().Start(ctx, "step "+string(id), trace.WithAttributes(
		attribute.String("narwhal.step", string(id)),
	))
	defer span.End()

	var res domain.StepResult
	h, err := e.Registry.Resolve(id)
	if err == nil {
		rec.State = domain.StateDispatched
		log.Info("Dispatching step")

		var out any
		out, err = e.invoke(ctx, h, ec)
		if err == nil {
			res = Normalize(out)
		}
	}
	elapsed := e.now().Sub(rec.StartedAt)
	rec.DurationMS = elapsed.Milliseconds()

	if err != nil {
		rec.State = domain.StateFailed
		rec.Error = err.Error()
		res = Failure(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.WithError(err).Warn("Step failed")
	} else {
		rec.State = domain.StateSucceeded
		span.SetAttributes(attribute.String("narwhal.status", string(res.Status)))
		log.WithFields(logrus.Fields{
			"status":  res.Status,
			"summary": res.Summary,
		}).Info("Step completed")
	}

	attrs := metric.WithAttributes(
		attribute.String("step", string(id)),
		attribute.String("state", string(rec.State)),
	)
	if inst.steps != nil {
		inst.steps.Add(ctx, 1, attrs)
	}
	if inst.duration != nil {
		inst.duration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
	}
	return res, rec
}

// invoke runs the handler, converting panics into errors.
func (e *Engine) invoke(ctx context.Context, h domain.Handler, ec *domain.ExecutionContext) (out any, err error) {
	if e.StepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.StepTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.Execute(ctx, ec)
}

func (e *Engine) instruments(log *logrus.Entry) instruments {
	m := e.Meter
	if m == nil {
		m = otel.Meter(instrumentationName)
	}
	var inst instruments
	var err error
	inst.steps, err = m.Int64Counter("narwhal.engine.steps",
		metric.WithDescription("Steps dispatched, by final state"))
	if err != nil {
		log.WithError(err).Debug("Could not create step counter")
	}
	inst.duration, err = m.Float64Histogram("narwhal.engine.step.duration",
		metric.WithDescription("Step wall time"), metric.WithUnit("ms"))
	if err != nil {
		log.WithError(err).Debug("Could not create duration histogram")
	}
	return inst
}

func (e *Engine) logger() *logrus.Entry {
	if e.Log != nil {
		return e.Log
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

func (e *Engine) tracer() trace.Tracer {
	if e.Tracer != nil {
		return e.Tracer
	}
	return otel.Tracer(instrumentationName)
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) runID() string {
	if e.NewRunID != nil {
		return e.NewRunID()
	}
	return uuid.NewString()
}

// mergeOrdered appends the items of add that are not yet in set, keeping
// first-seen order.
func mergeOrdered(set, add []string) []string {
	for _, t := range add {
		if !slices.Contains(set, t) {
			set = append(set, t)
		}
	}
	return set
}
