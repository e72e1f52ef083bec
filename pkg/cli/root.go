package cli

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/platinummonkey/claphost/pkg/clap"
	"github.com/platinummonkey/claphost/pkg/config"
	"github.com/platinummonkey/claphost/pkg/discovery"
	"github.com/platinummonkey/claphost/pkg/observability"
)

// BuildInfo is injected by main at link time.
type BuildInfo struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildDate string `json:"build_date" yaml:"build_date"`
}

// app carries state shared by every command of one invocation.
type app struct {
	info    BuildInfo
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	logger  *logrus.Logger
	closer  io.Closer
}

// NewRootCommand creates the root command
func NewRootCommand(info BuildInfo) *cobra.Command {
	a := &app{info: info, v: config.New()}

	root := &cobra.Command{
		Use:   "claphost",
		Short: "claphost - inspect, index and serve CLAP audio plugins",
		Long: `claphost loads CLAP plugin libraries, reports the plugins they contain,
and keeps a searchable index of every library in the CLAP search paths.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.closer != nil {
				return a.closer.Close()
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/claphost/config.yaml)")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-format", "text", "log format: text or json")
	flags.StringSlice("path", nil, "additional plugin search path (repeatable)")
	a.v.BindPFlag("observability.log.level", flags.Lookup("log-level"))
	a.v.BindPFlag("observability.log.format", flags.Lookup("log-format"))
	a.v.BindPFlag("plugins.extra_paths", flags.Lookup("path"))

	root.AddCommand(
		newListCommand(a),
		newMetadataCommand(a),
		newFactoriesCommand(a),
		newCreateCommand(a),
		newIndexCommand(a),
		newFindCommand(a),
		newServeCommand(a),
		newVersionCommand(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	logger, closer, err := observability.NewLogger(cfg.Observability.Log)
	if err != nil {
		return err
	}
	if cfg.Observability.Log.File == "" {
		logger.SetOutput(cmd.ErrOrStderr())
	}
	a.cfg = cfg
	a.logger = logger
	a.closer = closer
	return nil
}

// searchRoots returns the configured search paths, falling back to the
// platform's standard locations, followed by any extra paths.
func (a *app) searchRoots() []string {
	roots := a.cfg.Plugins.SearchPaths
	if len(roots) == 0 {
		roots = discovery.SearchPaths()
	}
	out := make([]string, 0, len(roots)+len(a.cfg.Plugins.ExtraPaths))
	out = append(out, roots...)
	return append(out, a.cfg.Plugins.ExtraPaths...)
}

func (a *app) loadLibrary(cmd *cobra.Command, path string) (*clap.Library, error) {
	lib, err := clap.Load(cmd.Context(), path, clap.WithLogger(a.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return lib, nil
}
