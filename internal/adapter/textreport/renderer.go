package textreport

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"bytemomo/narwhal/internal/domain"
)

const separator = "--------------------------------------------------"

// Renderer produces the plain-text assessment report.
type Renderer struct {
	// Tactics, when set, is used to annotate each technique with its tactics.
	Tactics func(technique string) []string
}

func (r Renderer) Render(run *domain.RunResult, ec *domain.ExecutionContext) (string, error) {
	if run == nil || ec == nil {
		return "", fmt.Errorf("render: nil run or context")
	}
	var b strings.Builder
	client := ec.Client()

	fmt.Fprintf(&b, "Cybersecurity Assessment Report - %s\n", client.Name)
	fmt.Fprintf(&b, "Category: %s\n", client.Category)
	if run.Workflow != "" {
		fmt.Fprintf(&b, "Workflow: %s\n", run.Workflow)
	}
	fmt.Fprintf(&b, "Run ID: %s\n", run.RunID)
	if !run.StartedAt.IsZero() {
		fmt.Fprintf(&b, "Started: %s (%s)\n", run.StartedAt.Format("2006-01-02 15:04:05"), run.Duration().Round(time.Millisecond))
	}

	b.WriteString("\nFindings:\n")
	run.Results.Each(func(id domain.StepID, res domain.StepResult) {
		fmt.Fprintf(&b, "[STEP] %s\n", id)
		fmt.Fprintf(&b, "Status : %s\n", res.Status)
		fmt.Fprintf(&b, "Summary: %s\n", res.Summary)
		if raw := formatRaw(res.Raw); raw != "" {
			b.WriteString("Raw output:\n")
			b.WriteString(raw)
			b.WriteString("\n")
		}
		b.WriteString(separator + "\n")
	})

	b.WriteString("\nMITRE Techniques Observed:\n")
	if len(run.MitreObserved) == 0 {
		b.WriteString("(none)\n")
	}
	for _, t := range run.MitreObserved {
		if r.Tactics != nil {
			if tac := r.Tactics(t); len(tac) > 0 {
				fmt.Fprintf(&b, "- %s (%s)\n", t, strings.Join(tac, ", "))
				continue
			}
		}
		fmt.Fprintf(&b, "- %s\n", t)
	}

	fmt.Fprintf(&b, "\nRisk Score: %d\n", run.RiskScore.Score)
	fmt.Fprintf(&b, "Risk Level: %s\n", run.RiskScore.Level)
	if len(run.RiskScore.Breakdown) > 0 {
		b.WriteString("Breakdown:\n")
		tactics := make([]string, 0, len(run.RiskScore.Breakdown))
		for t := range run.RiskScore.Breakdown {
			tactics = append(tactics, t)
		}
		sort.Strings(tactics)
		for _, t := range tactics {
			fmt.Fprintf(&b, "  %-20s %d\n", t+":", run.RiskScore.Breakdown[t])
		}
	}
	return b.String(), nil
}

func formatRaw(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	}
	out, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Sprint(raw)
	}
	return string(out)
}

// Writer stores rendered reports as <out>/<client>/<run_id>.log.
type Writer struct {
	OutDir string
}

func NewWriter(out string) *Writer { return &Writer{OutDir: out} }

func (w *Writer) Save(run *domain.RunResult) (string, error) {
	dir := filepath.Join(w.OutDir, run.Client.Slug())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, run.RunID+".log")
	return path, os.WriteFile(path, []byte(run.Report), 0o644)
}

// WriteOverview prints the client asset banner shown before a run starts.
func WriteOverview(w io.Writer, ec *domain.ExecutionContext) {
	line := strings.Repeat("=", 60)
	client := ec.Client()

	fmt.Fprintln(w, line)
	fmt.Fprintln(w, "CLIENT ASSET OVERVIEW")
	fmt.Fprintln(w, line)

	fmt.Fprintln(w, "\n[ Client Information ]")
	fmt.Fprintf(w, "Name     : %s\n", client.Name)
	fmt.Fprintf(w, "Category : %s\n", client.Category)

	fmt.Fprintln(w, "\n[ Network ]")
	for _, r := range ec.Network().Ranges {
		fmt.Fprintf(w, " - Range: %s%s\n", r, excluded(ec, r))
	}
	for _, g := range ec.Network().Gateways {
		fmt.Fprintf(w, " - Gateway: %s%s\n", g, excluded(ec, g))
	}

	fmt.Fprintln(w, "\n[ Web Domains ]")
	for _, d := range ec.Web().Domains {
		fmt.Fprintf(w, " - %s%s\n", d, excluded(ec, d))
	}

	fmt.Fprintln(w, "\n[ Endpoints ]")
	ep := ec.Endpoints()
	for _, h := range append(ep.Workstations, ep.Servers...) {
		fmt.Fprintf(w, " - %s%s\n", hostLabel(h), excluded(ec, h.IP))
	}

	fmt.Fprintln(w, "\n[ POS Systems ]")
	for _, h := range ec.POS().List {
		fmt.Fprintf(w, " - %s%s\n", hostLabel(h), excluded(ec, h.IP))
	}

	if hours := ec.Constraints().AllowedHours; hours != "" {
		fmt.Fprintf(w, "\nAllowed hours: %s\n", hours)
	}
	fmt.Fprintln(w, "\n"+line)
}

func hostLabel(h domain.Host) string {
	if h.Hostname != "" {
		return fmt.Sprintf("%s (%s)", h.IP, h.Hostname)
	}
	return h.IP
}

func excluded(ec *domain.ExecutionContext, asset string) string {
	if ec.IsExcluded(asset) {
		return " [excluded]"
	}
	return ""
}
