package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/claphost/pkg/clap"
)

// VersionInfo is printed by the version command.
type VersionInfo struct {
	BuildInfo `yaml:",inline"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Platform  string `json:"platform" yaml:"platform"`
	CLAP      string `json:"clap" yaml:"clap"`
}

func newVersionCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			info := VersionInfo{
				BuildInfo: a.info,
				GoVersion: runtime.Version(),
				Platform:  runtime.GOOS + "/" + runtime.GOARCH,
				CLAP:      clap.HostVersion.String(),
			}
			if ok, err := writeStructured(cmd.OutOrStdout(), format, info); ok {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", titleStyle.Render("claphost"), orDash(info.Version))
			fmt.Fprintf(out, "  commit:   %s\n", orDash(info.Commit))
			fmt.Fprintf(out, "  built:    %s\n", orDash(info.BuildDate))
			fmt.Fprintf(out, "  go:       %s (%s)\n", info.GoVersion, info.Platform)
			fmt.Fprintf(out, "  clap abi: %s\n", info.CLAP)
			return nil
		},
	}
	addFormatFlag(cmd)
	return cmd
}
