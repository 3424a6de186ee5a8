package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"bytemomo/narwhal/internal/adapter/grpcprobe"
	"bytemomo/narwhal/internal/adapter/jsonreport"
	"bytemomo/narwhal/internal/adapter/mqttnotify"
	"bytemomo/narwhal/internal/adapter/redishistory"
	"bytemomo/narwhal/internal/adapter/telemetry"
	"bytemomo/narwhal/internal/adapter/textreport"
	"bytemomo/narwhal/internal/adapter/yamlconfig"
	"bytemomo/narwhal/internal/catalog"
	"bytemomo/narwhal/internal/domain"
	"bytemomo/narwhal/internal/engine"
	"bytemomo/narwhal/internal/gate"
	"bytemomo/narwhal/internal/probes"
	"bytemomo/narwhal/internal/registry"
	"bytemomo/narwhal/internal/risk"
)

type runOptions struct {
	workflow  string
	inputFile string
	overrides yamlconfig.Overrides

	outDir        string
	stepTimeout   time.Duration
	failWhen      string
	catalogPath   string
	egressTargets []string
	dnsServer     string

	redisAddr  string
	historyMax int64

	mqttBroker string
	mqttTopic  string

	trace bool

	// probeOptions is replaced in tests to avoid touching the network.
	probeOptions func(log *logrus.Entry) probes.Options
}

func newRunCmd(a *app) *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an assessment workflow against a client profile",
		Long: `Run loads a workflow and an optional client profile, applies command line
overrides and executes every step in order. Failed steps are recorded and
the run continues. The report is printed and written under --out.

  narwhal run --workflow workflows/shop.yaml --input-file clients/acme.yaml
  narwhal run --workflow wf.yaml --client Acme --category negozio --pos 10.0.0.10,10.0.0.11`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runAssessment(cmd.Context(), o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.workflow, "workflow", "", "Workflow YAML file (required)")
	f.StringVar(&o.inputFile, "input-file", "", "Client profile YAML file")
	f.StringVar(&o.overrides.Client, "client", "", "Client name")
	f.StringVar(&o.overrides.Category, "category", "", "Client category: "+strings.Join(yamlconfig.Categories, ", "))
	f.StringVar(&o.overrides.NetworkRange, "network-range", "", "Network range (CIDR)")
	f.StringVar(&o.overrides.WebDomain, "web-domain", "", "Web domain")
	f.StringVar(&o.overrides.Endpoints, "endpoints", "", "Comma separated endpoint IPs")
	f.StringVar(&o.overrides.POS, "pos", "", "Comma separated POS IPs")
	f.StringVar(&o.outDir, "out", "output", "Directory for run logs and JSON results")
	f.DurationVar(&o.stepTimeout, "step-timeout", 0, "Per-step time limit (0 disables)")
	f.StringVar(&o.failWhen, "fail-when", "", `CEL condition that makes the run exit with code 3, e.g. 'score >= 30'`)
	f.StringVar(&o.catalogPath, "catalog", "", "Technique catalog YAML replacing the built-in one")
	f.StringSliceVar(&o.egressTargets, "egress-target", nil, "host:port probed by network.egress (repeatable)")
	f.StringVar(&o.dnsServer, "dns-server", "", "DNS server for web.web_enum (default from resolv.conf)")
	f.StringVar(&o.redisAddr, "redis-addr", "", "Redis address or URL for the score history")
	f.Int64Var(&o.historyMax, "history-max", 100, "Runs kept per client in the history")
	f.StringVar(&o.mqttBroker, "mqtt-broker", "", "MQTT broker receiving a run summary")
	f.StringVar(&o.mqttTopic, "mqtt-topic", "", `MQTT topic; "{client}" expands to the client slug`)
	f.BoolVar(&o.trace, "trace", false, "Log OpenTelemetry spans for the run")
	_ = cmd.MarkFlagRequired("workflow")
	return cmd
}

func (a *app) runAssessment(ctx context.Context, o *runOptions) error {
	log := a.log()

	var failGate *gate.Gate
	if o.failWhen != "" {
		g, err := gate.Compile(o.failWhen)
		if err != nil {
			return E("run", "invalid --fail-when", ExitFatal, err)
		}
		failGate = g
	}

	loader := yamlconfig.NewLoader("")
	wf, err := loader.LoadWorkflow(o.workflow)
	if err != nil {
		return E("run", "load workflow", ExitFatal, err)
	}

	var spec domain.ContextSpec
	if o.inputFile != "" {
		if spec, err = loader.LoadProfile(o.inputFile); err != nil {
			return E("run", "load client profile", ExitFatal, err)
		}
	}
	if spec, err = o.overrides.Apply(spec); err != nil {
		return E("run", "apply overrides", ExitFatal, err)
	}
	ec := domain.NewExecutionContext(spec)
	textreport.WriteOverview(a.out, ec)

	cat, err := loadCatalog(o.catalogPath)
	if err != nil {
		return E("run", "load catalog", ExitFatal, err)
	}
	reg, err := buildRegistry(log, o, wf)
	if err != nil {
		return E("run", "register probes", ExitFatal, err)
	}

	if o.trace {
		shutdown, err := telemetry.Setup(log.WithField("component", "trace"), logrus.InfoLevel, a.build.Version)
		if err != nil {
			return E("run", "setup tracing", ExitFatal, err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.WithError(err).Warn("Tracer shutdown failed")
			}
		}()
	}

	eng := engine.New(log, reg, cat, risk.Default())
	eng.Renderer = textreport.Renderer{Tactics: cat.TacticsForTechnique}
	eng.StepTimeout = o.stepTimeout

	fmt.Fprintf(a.out, "\n[*] Starting assessment for %s\n", ec)
	fmt.Fprintf(a.out, "[*] Workflow: %s\n\n", wf.Name)

	run, err := eng.Run(ctx, *wf, ec)
	if err != nil {
		return E("run", "assessment failed", ExitFatal, err)
	}
	printSummary(a.out, run)

	a.persist(ctx, log, o, run)

	if failGate != nil {
		tripped, err := failGate.Evaluate(run)
		if err != nil {
			return E("run", "evaluate --fail-when", ExitFatal, err)
		}
		if tripped {
			fmt.Fprintf(a.out, "\n[!] Fail condition met: %s\n", failGate)
			return E("run", fmt.Sprintf("fail condition %q met", failGate), ExitGate, nil)
		}
	}
	return nil
}

// persist writes the run to disk, history and MQTT. Failures here are
// reported but do not fail the run.
func (a *app) persist(ctx context.Context, log *logrus.Entry, o *runOptions, run *domain.RunResult) {
	for _, w := range []domain.ResultRepo{textreport.NewWriter(o.outDir), jsonreport.New(o.outDir)} {
		path, err := w.Save(run)
		if err != nil {
			log.WithError(err).Warn("Failed to save results")
			continue
		}
		fmt.Fprintf(a.out, "[+] Saved %s\n", path)
	}

	if o.redisAddr != "" {
		url := o.redisAddr
		if !strings.Contains(url, "://") {
			url = "redis://" + url
		}
		store, err := redishistory.New(redishistory.Options{URL: url, MaxEntries: o.historyMax})
		if err != nil {
			log.WithError(err).Warn("Score history unavailable")
		} else {
			if err := store.Append(ctx, domain.NewHistoryEntry(run)); err != nil {
				log.WithError(err).Warn("Failed to append score history")
			}
			_ = store.Close()
		}
	}

	if o.mqttBroker != "" {
		pub, err := mqttnotify.New(mqttnotify.Options{Broker: o.mqttBroker, Topic: o.mqttTopic, QoS: 1}, log.WithField("component", "mqtt"))
		if err == nil {
			err = pub.Publish(ctx, run)
		}
		if err != nil {
			log.WithError(err).Warn("Failed to publish run summary")
		}
	}
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	return catalog.LoadFile(path)
}

func buildRegistry(log *logrus.Entry, o *runOptions, wf *domain.Workflow) (*registry.Registry, error) {
	reg := registry.New()
	opts := probes.Options{Log: log, EgressTargets: o.egressTargets, DNSServer: o.dnsServer}
	if o.probeOptions != nil {
		opts = o.probeOptions(log)
	}
	if err := probes.Register(reg, opts); err != nil {
		return nil, err
	}
	if wf != nil {
		if err := grpcprobe.Register(reg, wf.RemoteProbes, log.WithField("component", "remote-probe")); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func printSummary(w io.Writer, run *domain.RunResult) {
	fmt.Fprintln(w, "[+] Assessment completed")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== RESULTS ===")
	run.Results.Each(func(id domain.StepID, res domain.StepResult) {
		fmt.Fprintf(w, "- %s: %s\n", id, res.Status)
	})

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== MITRE TECHNIQUES ===")
	for _, t := range run.MitreObserved {
		fmt.Fprintf(w, "- %s\n", t)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== RISK SUMMARY ===")
	fmt.Fprintf(w, "Score: %d\n", run.RiskScore.Score)
	fmt.Fprintf(w, "Level: %s\n", run.RiskScore.Level)
}
