package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"bytemomo/narwhal/internal/adapter/yamlconfig"
	"bytemomo/narwhal/internal/domain"
	"bytemomo/narwhal/internal/risk"
)

func newStepsCmd(a *app) *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "steps",
		Short: "List the probes available to workflows",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var wf *domain.Workflow
			if o.workflow != "" {
				var err error
				if wf, err = yamlconfig.NewLoader("").LoadWorkflow(o.workflow); err != nil {
					return E("steps", "load workflow", ExitFatal, err)
				}
			}
			cat, err := loadCatalog(o.catalogPath)
			if err != nil {
				return E("steps", "load catalog", ExitFatal, err)
			}
			reg, err := buildRegistry(a.log(), o, wf)
			if err != nil {
				return E("steps", "register probes", ExitFatal, err)
			}

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STEP\tSOURCE\tTECHNIQUES\tDESCRIPTION")
			for _, e := range reg.List() {
				techs := strings.Join(cat.LookupTechniques(e.ID), ",")
				if techs == "" {
					techs = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.ID, e.Source, techs, e.Description)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&o.workflow, "workflow", "", "Also list the remote probes declared by this workflow")
	cmd.Flags().StringVar(&o.catalogPath, "catalog", "", "Technique catalog YAML replacing the built-in one")
	return cmd
}

func newCatalogCmd(a *app) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print the step to MITRE ATT&CK mapping",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := loadCatalog(path)
			if err != nil {
				return E("catalog", "load catalog", ExitFatal, err)
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STEP\tTACTICS\tTECHNIQUES")
			for _, id := range cat.Steps() {
				e, _ := cat.Lookup(id)
				fmt.Fprintf(tw, "%s\t%s\t%s\n", id, strings.Join(e.Tactics, ", "), strings.Join(e.Techniques, ", "))
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			model := risk.Default()
			levels := make([]string, 0, 5)
			for _, th := range model.Thresholds() {
				levels = append(levels, fmt.Sprintf("%s>=%d", th.Level, th.Min))
			}
			fmt.Fprintf(a.out, "\nRisk levels: %s\n", strings.Join(levels, " "))
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "catalog", "", "Technique catalog YAML replacing the built-in one")
	return cmd
}

func newWorkflowsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "workflows [dir]",
		Short: "List the workflow files of a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			loader := yamlconfig.NewLoader("")
			files, err := loader.FindWorkflows(dir)
			if err != nil {
				return E("workflows", "list directory", ExitFatal, err)
			}

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FILE\tNAME\tSTEPS")
			for _, f := range files {
				wf, err := loader.LoadWorkflow(f)
				if err != nil {
					a.log().WithError(err).WithField("file", f).Warn("Skipping invalid workflow")
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\n", f, wf.Name, len(wf.Steps))
			}
			return tw.Flush()
		},
	}
}
