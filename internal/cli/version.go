package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print narwhal version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(a.out, "narwhal %s\n", a.build.Version)
			fmt.Fprintf(a.out, "  Commit: %s\n", a.build.Commit)
			fmt.Fprintf(a.out, "  Go:     %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
