package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/claphost/pkg/clap"
	"github.com/platinummonkey/claphost/pkg/discovery"
)

func newListCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the plugin libraries in the search paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			roots := a.searchRoots()
			a.logger.WithField("roots", strings.Join(roots, string(filepath.ListSeparator))).Debug("Scanning search paths")

			scanner := discovery.NewScanner(a.cfg.Plugins.Concurrency, a.logger)
			paths, err := scanner.Scan(cmd.Context(), roots...)
			if err != nil {
				if cmd.Context().Err() != nil {
					return err
				}
				a.logger.WithError(err).Warn("Some search paths could not be scanned")
			}
			if paths == nil {
				paths = []string{}
			}

			if ok, err := writeStructured(cmd.OutOrStdout(), format, paths); ok {
				return err
			}
			out := cmd.OutOrStdout()
			if len(paths) == 0 {
				fmt.Fprintln(out, dimStyle.Render("No plugin libraries found"))
				return nil
			}
			for _, p := range paths {
				fmt.Fprintln(out, p)
			}
			return nil
		},
	}
	addFormatFlag(cmd)
	return cmd
}

func newMetadataCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metadata <path>",
		Short: "Show the plugins a library provides",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			lib, err := a.loadLibrary(cmd, args[0])
			if err != nil {
				return err
			}
			defer lib.Close()

			md, err := lib.Metadata(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to read metadata: %w", err)
			}
			if ok, err := writeStructured(cmd.OutOrStdout(), format, md); ok {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s (CLAP %s)\n\n", titleStyle.Render("Library:"), lib.Path(), md.Version)
			rows := make([][]string, 0, len(md.Plugins))
			for _, p := range md.Plugins {
				rows = append(rows, []string{
					p.ID,
					p.Name,
					orDash(p.Version),
					orDash(p.Vendor),
					orDash(strings.Join(p.Features, ",")),
				})
			}
			return writeTable(out, []string{"ID", "NAME", "VERSION", "VENDOR", "FEATURES"}, rows)
		},
	}
	addFormatFlag(cmd)
	return cmd
}

// FactoryStatus reports whether a library answers to a factory ID.
type FactoryStatus struct {
	ID     string `json:"id" yaml:"id"`
	Exists bool   `json:"exists" yaml:"exists"`
}

func newFactoriesCommand(a *app) *cobra.Command {
	var ids []string
	cmd := &cobra.Command{
		Use:   "factories <path>",
		Short: "Check which factories a library provides",
		Long: `Query a library for factory IDs. Without --id the standard plugin and
preset discovery factories are checked.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				ids = []string{
					clap.PluginFactoryID,
					clap.PresetDiscoveryFactoryID,
					clap.PresetDiscoveryFactoryDraftID,
				}
			}

			lib, err := a.loadLibrary(cmd, args[0])
			if err != nil {
				return err
			}
			defer lib.Close()

			statuses := make([]FactoryStatus, 0, len(ids))
			for _, id := range ids {
				exists, err := lib.FactoryExists(id)
				if err != nil {
					return fmt.Errorf("failed to query factory %q: %w", id, err)
				}
				statuses = append(statuses, FactoryStatus{ID: id, Exists: exists})
			}

			if ok, err := writeStructured(cmd.OutOrStdout(), format, statuses); ok {
				return err
			}
			rows := make([][]string, 0, len(statuses))
			for _, s := range statuses {
				mark := errStyle.Render("no")
				if s.Exists {
					mark = okStyle.Render("yes")
				}
				rows = append(rows, []string{s.ID, mark})
			}
			return writeTable(cmd.OutOrStdout(), []string{"FACTORY", "PRESENT"}, rows)
		},
	}
	cmd.Flags().StringSliceVar(&ids, "id", nil, "factory ID to check (repeatable)")
	addFormatFlag(cmd)
	return cmd
}

// Instance describes a plugin created and destroyed by the create command.
type Instance struct {
	Library   string              `json:"library" yaml:"library"`
	Plugin    clap.PluginMetadata `json:"plugin" yaml:"plugin"`
	Restarts  int64               `json:"restart_requests" yaml:"restart_requests"`
	Processes int64               `json:"process_requests" yaml:"process_requests"`
	Callbacks int64               `json:"callback_requests" yaml:"callback_requests"`
}

func newCreateCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <path> <plugin-id>",
		Short: "Instantiate a plugin and report its descriptor",
		Long: `Create an instance of a plugin through the library's plugin factory with a
minimal host, read back its descriptor and destroy it again. Useful to check
that a plugin can be instantiated at all.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			lib, err := a.loadLibrary(cmd, args[0])
			if err != nil {
				return err
			}
			defer lib.Close()

			host, err := clap.NewHost(clap.HostInfo{
				Name:    "claphost",
				Vendor:  "claphost",
				URL:     "https://github.com/platinummonkey/claphost",
				Version: a.info.Version,
			})
			if err != nil {
				return fmt.Errorf("failed to create host: %w", err)
			}
			defer host.Close()

			plugin, err := lib.CreatePlugin(cmd.Context(), args[1], host)
			if err != nil {
				return fmt.Errorf("failed to create plugin %q: %w", args[1], err)
			}
			desc, descErr := plugin.Descriptor()
			if err := plugin.Destroy(); err != nil {
				return fmt.Errorf("failed to destroy plugin %q: %w", args[1], err)
			}
			if descErr != nil {
				return fmt.Errorf("failed to read descriptor: %w", descErr)
			}

			inst := Instance{Library: lib.Path(), Plugin: desc}
			inst.Restarts, inst.Processes, inst.Callbacks = host.Requests()

			if ok, err := writeStructured(cmd.OutOrStdout(), format, inst); ok {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s (%s)\n", okStyle.Render("Created"), desc.Name, desc.ID)
			return writeTable(out, []string{"FIELD", "VALUE"}, [][]string{
				{"library", inst.Library},
				{"version", orDash(desc.Version)},
				{"vendor", orDash(desc.Vendor)},
				{"features", orDash(strings.Join(desc.Features, ","))},
				{"host requests", fmt.Sprintf("restart=%d process=%d callback=%d", inst.Restarts, inst.Processes, inst.Callbacks)},
			})
		},
	}
	addFormatFlag(cmd)
	return cmd
}
