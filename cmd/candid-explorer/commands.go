package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ggoodman/candid-explorer-go/explorer"
	"github.com/ggoodman/candid-explorer-go/idl"
	"github.com/ggoodman/candid-explorer-go/methods"
	"github.com/ggoodman/candid-explorer-go/querytool"
)

func newMethodsCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "methods",
		Short: "Parse the interface description and print the classified procedures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			src, err := a.sources()
			if err != nil {
				return err
			}
			res, err := idl.NewParser(idl.WithLogger(a.log)).Parse(src)
			if err != nil {
				return err
			}
			rows := methodRows(res)
			if output == "text" {
				return printMethods(cmd.OutOrStdout(), res, rows)
			}
			return render(cmd.OutOrStdout(), output, map[string]any{
				"encoding": res.Encoding.String(),
				"tier":     res.Tier.String(),
				"methods":  rows,
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text, json or yaml")
	return cmd
}

type methodRow struct {
	Name       string   `json:"name" yaml:"name"`
	Mode       string   `json:"mode" yaml:"mode"`
	Category   string   `json:"category" yaml:"category"`
	Section    string   `json:"section,omitempty" yaml:"section,omitempty"`
	Parameters []string `json:"parameters" yaml:"parameters"`
	Returns    string   `json:"returns" yaml:"returns"`
}

func methodRows(res *idl.Result) []methodRow {
	class := methods.Classify(res.Signatures)
	reqs := methods.AnalyzeRequirements(res)
	byName := make(map[string]methods.Method)
	for _, m := range class.All() {
		byName[m.Name] = m
	}
	rows := make([]methodRow, 0, len(res.Signatures))
	for _, sig := range res.Signatures {
		row := methodRow{Name: sig.Name, Mode: sig.Mode.String(), Category: "excluded", Parameters: []string{}, Returns: sig.Returns}
		if m, ok := byName[sig.Name]; ok {
			row.Category = m.Category.String()
			row.Section = m.SectionName
		}
		for _, p := range reqs.Lookup(sig.Name).Types {
			row.Parameters = append(row.Parameters, p.WireType)
		}
		rows = append(rows, row)
	}
	return rows
}

func printMethods(w io.Writer, res *idl.Result, rows []methodRow) error {
	fmt.Fprintf(w, "encoding: %s (%s)\n\n", res.Encoding, res.Tier)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tMODE\tCATEGORY\tSECTION\tPARAMETERS\tRETURNS")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t(%s)\t%s\n",
			r.Name, r.Mode, r.Category, r.Section, strings.Join(r.Parameters, ", "), r.Returns)
	}
	return tw.Flush()
}

func newSchemaCmd(a *app) *cobra.Command {
	var (
		output     string
		jsonSchema bool
	)
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Load the service's data and print the inferred section schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			src, err := a.sources()
			if err != nil {
				return err
			}
			conn, cleanup, err := a.connect(ctx, src)
			if err != nil {
				return err
			}
			defer cleanup()
			if _, err := conn.Load(ctx, explorer.Privileged(a.svc.Privileged)); err != nil {
				a.log.WarnContext(ctx, "load failed; schema uses placeholders", slog.Any("err", err))
			}
			s := conn.Schema()
			if jsonSchema {
				return render(cmd.OutOrStdout(), output, s.JSONSchemas())
			}
			return render(cmd.OutOrStdout(), output, s)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputJSON, "output format: json or yaml")
	cmd.Flags().BoolVar(&jsonSchema, "jsonschema", false, "print one JSON Schema document per section")
	return cmd
}

type loadReport struct {
	Data    map[string]any `json:"data" yaml:"data"`
	Bulk    bool           `json:"bulk" yaml:"bulk"`
	Loaded  []string       `json:"loaded" yaml:"loaded"`
	Skipped []string       `json:"skipped" yaml:"skipped"`
	Failed  []string       `json:"failed" yaml:"failed"`
}

func newLoadCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Call every parameterless getter and print the data snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			src, err := a.sources()
			if err != nil {
				return err
			}
			conn, cleanup, err := a.connect(ctx, src)
			if err != nil {
				return err
			}
			defer cleanup()
			res, err := conn.Load(ctx, explorer.Privileged(a.svc.Privileged))
			if err != nil {
				return err
			}
			rep := loadReport{Data: res.Data, Bulk: res.Bulk, Loaded: res.Loaded, Skipped: []string{}, Failed: []string{}}
			for _, s := range res.Skipped {
				rep.Skipped = append(rep.Skipped, s.Method+": "+s.Reason)
			}
			for _, f := range res.Failed {
				rep.Failed = append(rep.Failed, f.Method+": "+f.Reason)
			}
			return render(cmd.OutOrStdout(), output, rep)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputJSON, "output format: json or yaml")
	return cmd
}

func newCallCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "call <method> [args...]",
		Short: "Invoke one procedure, coercing each argument to its declared parameter type",
		Long: "Invoke one procedure. Each argument is read as JSON when it parses as JSON\n" +
			"and as text otherwise, then coerced to the declared parameter type.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			src, err := a.sources()
			if err != nil {
				return err
			}
			conn, cleanup, err := a.connect(ctx, src)
			if err != nil {
				return err
			}
			defer cleanup()
			out, err := conn.Invoke(ctx, args[0], parseArgs(args[1:])...)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), output, out)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputJSON, "output format: json or yaml")
	return cmd
}

// parseArgs reads each argument as JSON, falling back to the raw text.
// Numbers stay json.Number so wide integers keep their precision.
func parseArgs(raw []string) []any {
	out := make([]any, len(raw))
	for i, s := range raw {
		dec := json.NewDecoder(strings.NewReader(s))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil || dec.More() {
			out[i] = s
			continue
		}
		out[i] = v
	}
	return out
}

func newServeMCPCmd(a *app) *cobra.Command {
	var (
		updates bool
		preload bool
		watch   bool
	)
	cmd := &cobra.Command{
		Use:   "serve-mcp",
		Short: "Serve the service's procedures as Model Context Protocol tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			src, err := a.sources()
			if err != nil {
				return err
			}
			conn, cleanup, err := a.connect(ctx, src)
			if err != nil {
				return err
			}
			cleanups := []func(){cleanup}
			defer func() {
				for _, c := range cleanups {
					c()
				}
			}()
			if preload {
				if _, err := conn.Load(ctx, explorer.Privileged(a.svc.Privileged)); err != nil {
					a.log.WarnContext(ctx, "preload failed", slog.Any("err", err))
				}
			}
			opts := []querytool.Option{querytool.WithLogger(a.log)}
			if updates {
				opts = append(opts, querytool.WithUpdates())
			}
			qt := querytool.New(conn, opts...)
			defer qt.Close()

			watchDone := make(chan struct{})
			if !watch {
				close(watchDone)
			} else {
				go func() {
					defer close(watchDone)
					err := explorer.Watch(ctx, a.files(), func(ctx context.Context, src idl.Sources) error {
						next, cleanup, err := a.connect(ctx, src)
						if err != nil {
							if errors.Is(err, idl.ErrDescriptionParse) {
								a.log.WarnContext(ctx, "description does not parse; keeping previous tools", slog.Any("err", err))
								return nil
							}
							return err
						}
						cleanups = append(cleanups, cleanup)
						qt.SetConnection(next)
						return nil
					}, explorer.WithWatchLogger(a.log))
					if err != nil && !errors.Is(err, context.Canceled) {
						a.log.ErrorContext(ctx, "watch stopped", slog.Any("err", err))
					}
				}()
			}
			err = qt.ServeStdio(ctx, "candid-explorer", version)
			// stop the watcher before its connections are released
			cancel()
			<-watchDone
			return err
		},
	}
	cmd.Flags().BoolVar(&updates, "allow-updates", false, "also expose update procedures as tools")
	cmd.Flags().BoolVar(&preload, "load", true, "load the data snapshot before serving")
	cmd.Flags().BoolVar(&watch, "watch", false, "rebuild the tool list when the description files change")
	return cmd
}

func newWatchCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reconnect and print the schema whenever the description files change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			w := &watcher{app: a, out: cmd.OutOrStdout(), output: output}
			defer w.close()

			src, err := a.sources()
			if err != nil {
				return err
			}
			if err := w.reload(ctx, src); err != nil {
				return err
			}
			err = explorer.Watch(ctx, a.files(), w.reload, explorer.WithWatchLogger(a.log))
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputJSON, "output format: json or yaml")
	return cmd
}

type watcher struct {
	app     *app
	out     io.Writer
	output  string
	cleanup func()
}

// reload replaces the current connection. Description errors are logged
// and the previous connection kept, so an editor's partial write does not
// end the watch.
func (w *watcher) reload(ctx context.Context, src idl.Sources) error {
	conn, cleanup, err := w.app.connect(ctx, src)
	if err != nil {
		if errors.Is(err, idl.ErrDescriptionParse) {
			w.app.log.WarnContext(ctx, "description does not parse; keeping previous connection", slog.Any("err", err))
			return nil
		}
		return err
	}
	w.close()
	w.cleanup = cleanup

	if _, err := conn.Load(ctx, explorer.Privileged(w.app.svc.Privileged)); err != nil {
		w.app.log.WarnContext(ctx, "load failed", slog.Any("err", err))
	}
	return render(w.out, w.output, conn.Schema())
}

func (w *watcher) close() {
	if w.cleanup != nil {
		w.cleanup()
		w.cleanup = nil
	}
}
