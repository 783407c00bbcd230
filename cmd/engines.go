package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/usibridge/internal/engine"
	"github.com/zjrosen/usibridge/internal/log"
	"github.com/zjrosen/usibridge/internal/presentation"
	"github.com/zjrosen/usibridge/internal/watcher"
)

func (a *app) newEnginesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "engines",
		Short: "Manage the engine definitions file",
	}
	cmd.AddCommand(
		a.newEnginesListCmd(),
		a.newEnginesValidateCmd(),
		a.newEnginesDiffCmd(),
		a.newEnginesMergeCmd(),
		a.newEnginesRefreshCmd(),
		a.newEnginesExportCmd(),
		a.newEnginesImportCmd(),
	)
	return cmd
}

func (a *app) newEnginesListCmd() *cobra.Command {
	var (
		label string
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured engines",
		Long: `List the engines of the engines file.

Use --label to show only engines offered for one purpose: game, research
or mate. Use --watch to print the list again whenever the file changes.

Examples:
  usibridge engines list
  usibridge engines list --label mate
  usibridge engines list --json | jq '.[].name'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch engine.Label(label) {
			case "", engine.LabelGame, engine.LabelResearch, engine.LabelMate:
			default:
				return fmt.Errorf("unknown label %q (want game, research or mate)", label)
			}
			out := cmd.OutOrStdout()
			if err := a.listEngines(out, engine.Label(label)); err != nil {
				return err
			}
			if !watch {
				return nil
			}
			return a.watchEngines(cmd.Context(), func() error {
				return a.listEngines(out, engine.Label(label))
			})
		},
	}

	cmd.Flags().StringVarP(&label, "label", "l", "", "only engines with this label")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "print again when the engines file changes")
	return cmd
}

func (a *app) listEngines(w io.Writer, label engine.Label) error {
	engines, err := a.loadEngines()
	if err != nil {
		return err
	}
	if label != "" {
		engines = engines.FilterByLabel(label)
	}
	list := engines.List()
	dtos := make([]presentation.EngineDTO, len(list))
	for i, d := range list {
		dtos[i] = presentation.FromDescriptor(d)
	}
	return a.formatter(w).FormatEngines(dtos)
}

// watchEngines calls onChange after every change of the engines file until
// ctx is done. Reload errors are logged and do not stop the watch.
func (a *app) watchEngines(ctx context.Context, onChange func() error) error {
	w, err := watcher.New(watcher.DefaultConfig(a.cfg.EnginesFile))
	if err != nil {
		return err
	}
	changes, err := w.Start()
	if err != nil {
		_ = w.Stop()
		return err
	}
	defer func() { _ = w.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changes:
			if err := onChange(); err != nil {
				log.ErrorErr(log.CatWatcher, "Reloading engines failed", err, "path", a.cfg.EnginesFile)
			}
		}
	}
}

func (a *app) newEnginesValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check every engine's option values against their declarations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			engines, err := a.loadEngines()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			var errs []error
			for _, d := range engines.List() {
				if err := engine.Validate(d); err != nil {
					_, _ = fmt.Fprintf(out, "invalid %s: %v\n", d.DisplayName(), err)
					errs = append(errs, fmt.Errorf("%s: %w", d.DisplayName(), err))
					continue
				}
				_, _ = fmt.Fprintf(out, "ok %s\n", d.DisplayName())
			}
			if len(errs) > 0 {
				return fmt.Errorf("%d of %d engines invalid: %w", len(errs), engines.Len(), errors.Join(errs...))
			}
			return nil
		},
	}
}

func (a *app) newEnginesDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <left> <right>",
		Short: "Show options whose values differ between two engines",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			engines, err := a.loadEngines()
			if err != nil {
				return err
			}
			left, right, err := findPair(engines, args[0], args[1])
			if err != nil {
				return err
			}
			diffs := presentation.FromOptionDiffs(engine.Diff(left, right))
			return a.formatter(cmd.OutOrStdout()).FormatDiffs(diffs)
		},
	}
}

func (a *app) newEnginesMergeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge <target> <source>",
		Short: "Copy source's identity and option values onto target",
		Long: `Apply the URI, name, labels and option values of <source> onto the
option declarations of <target> and print the result as YAML. The engines
file is not modified.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			engines, err := a.loadEngines()
			if err != nil {
				return err
			}
			target, source, err := findPair(engines, args[0], args[1])
			if err != nil {
				return err
			}
			merged := target.Clone()
			engine.Merge(merged, source)
			return printYAML(cmd.OutOrStdout(), merged)
		},
	}
}

func (a *app) newEnginesRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <engine>",
		Short: "Re-read an engine's option declarations, keeping configured values",
		Long: `Start the engine's executable, read the options it declares now and merge
the configured values back onto them. Use this after upgrading an engine;
the printed YAML replaces the engine's entry in the engines file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engines, err := a.loadEngines()
			if err != nil {
				return err
			}
			saved, ok := engines.Find(args[0])
			if !ok {
				return fmt.Errorf("engine %q not found", args[0])
			}

			reg := a.newRegistry()
			defer func() { _ = reg.Close() }()
			fresh, err := reg.QueryEngine(cmd.Context(), saved.Path)
			if err != nil {
				return err
			}
			engine.Merge(fresh, saved)
			return printYAML(cmd.OutOrStdout(), fresh)
		},
	}
}

func (a *app) newEnginesExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <engine>",
		Short: "Print an engine in the compact form used by import",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.findEngine(args[0])
			if err != nil {
				return err
			}
			return printYAML(cmd.OutOrStdout(), engine.ExportCLI(d))
		},
	}
}

func (a *app) newEnginesImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Convert an engine from its compact form to an engines file entry",
		Long: `Read an engine in the compact form printed by export, issue it a fresh URI
and print it as an engines file document ready to be pasted into the
engines file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0]) //nolint:gosec // G304: user-supplied import file
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			var cli engine.CLIEngine
			if err := yaml.Unmarshal(data, &cli); err != nil {
				return fmt.Errorf("parsing %s: %w", args[0], err)
			}
			d, err := engine.ImportCLI(cli, "")
			if err != nil {
				return err
			}
			if err := engine.Validate(d); err != nil {
				return err
			}
			log.Debug(log.CatConfig, "Imported engine", "name", d.DisplayName(), "uri", d.URI)

			doc := engine.NewEngines()
			doc.Add(d)
			out, err := doc.Marshal()
			if err != nil {
				return fmt.Errorf("encoding engines: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func findPair(engines *engine.Engines, a, b string) (*engine.Descriptor, *engine.Descriptor, error) {
	left, ok := engines.Find(a)
	if !ok {
		return nil, nil, fmt.Errorf("engine %q not found", a)
	}
	right, ok := engines.Find(b)
	if !ok {
		return nil, nil, fmt.Errorf("engine %q not found", b)
	}
	return left, right, nil
}

func printYAML(w io.Writer, v any) error {
	out, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding yaml: %w", err)
	}
	_, err = w.Write(out)
	return err
}
