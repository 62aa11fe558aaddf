package cli

import (
	"github.com/spf13/cobra"

	v "github.com/linnemanlabs/go-core/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			vi := v.Get()
			cmd.Printf("%s (%s) %s (commit=%s, build_date=%s, go=%s)\n",
				vi.AppName, vi.Component, vi.Version, vi.Commit, vi.BuildDate, vi.GoVersion)
		},
	}
}
