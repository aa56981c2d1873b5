package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/vk/flowsync/internal/app"
	"github.com/vk/flowsync/internal/config"
	"github.com/vk/flowsync/internal/document"
	"github.com/vk/flowsync/internal/orchestrator"
)

// Execute runs a parsed invocation. Documents and listings go to outW, logs
// to logW.
func Execute(ctx context.Context, inv *Invocation, loader config.Loader, outW, logW io.Writer) error {
	if inv.Command == "doc" {
		return runDoc(inv.Args, outW)
	}

	a, err := app.NewApp(ctx, logW, inv.Config, loader)
	if err != nil {
		return err
	}
	switch inv.Command {
	case "schema":
		return printSchema(a, outW)
	case "units":
		return printUnits(a, outW)
	}

	if err := a.Open(ctx); err != nil {
		return err
	}
	defer a.Close()

	switch inv.Command {
	case "extract":
		return runExtract(ctx, a, inv, outW)
	case "write":
		doc, err := app.ReadDocument(inv.Args[0])
		if err != nil {
			return err
		}
		report, err := a.Write(ctx, doc, inv.runOptions()...)
		return printReport(outW, report, err)
	case "retry":
		doc, err := app.ReadDocument(inv.Args[1])
		if err != nil {
			return err
		}
		report, err := a.Retry(ctx, inv.Args[0], doc, inv.runOptions()...)
		if err == nil && report == nil {
			fmt.Fprintf(outW, "report %s has nothing to retry\n", inv.Args[0])
			return nil
		}
		return printReport(outW, report, err)
	case "diff":
		return runDiff(ctx, a, inv, outW)
	case "capture":
		n, err := a.Capture(ctx, inv.Args[0], inv.Root)
		if err != nil {
			return err
		}
		fmt.Fprintf(outW, "captured %d nodes into %s\n", n, inv.Args[0])
		return nil
	case "serve":
		return a.Serve(ctx)
	case "watch":
		return a.Watch(ctx, inv.Args[0], inv.Debounce, inv.runOptions()...)
	}
	return usageError("unknown command %q", inv.Command)
}

func (inv *Invocation) runOptions() []orchestrator.RunOption {
	opts := []orchestrator.RunOption{orchestrator.WithOnly(inv.Only...)}
	if inv.Results {
		opts = append(opts, orchestrator.WithResults())
	}
	if inv.Run {
		opts = append(opts, orchestrator.WithRun())
	}
	return opts
}

func runExtract(ctx context.Context, a *app.App, inv *Invocation, outW io.Writer) error {
	doc, report, err := a.Extract(ctx, inv.runOptions()...)
	if err != nil {
		return err
	}
	format := inv.Format
	if inv.Output != "" && format == app.FormatJSON {
		format = app.FormatOf(inv.Output)
	}
	data, err := app.EncodeDocument(doc, format)
	if err != nil {
		return err
	}
	if inv.Output == "" {
		_, err = outW.Write(data)
	} else {
		err = os.WriteFile(inv.Output, data, 0o644)
	}
	if err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	return reportExit(report)
}

func runDiff(ctx context.Context, a *app.App, inv *Invocation, outW io.Writer) error {
	want, err := app.ReadDocument(inv.Args[0])
	if err != nil {
		return err
	}
	got, _, err := a.Extract(ctx, inv.runOptions()...)
	if err != nil {
		return err
	}
	// Only compare the sections the document mentions.
	for _, key := range got.Keys() {
		if !want.Has(key) {
			got.Delete(key)
		}
	}
	if diff := document.Diff(want, got); diff != "" {
		fmt.Fprintf(outW, "store differs from %s (-document +store):\n%s", inv.Args[0], diff)
		return &ExitError{Code: 1, Message: "documents differ"}
	}
	fmt.Fprintln(outW, "no differences")
	return nil
}

func printReport(outW io.Writer, report *orchestrator.Report, runErr error) error {
	if report != nil {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(outW, string(data))
	}
	if runErr != nil {
		return runErr
	}
	return reportExit(report)
}

// reportExit turns section failures into exit code 3.
func reportExit(report *orchestrator.Report) error {
	if report == nil || report.OK() {
		return nil
	}
	return &ExitError{Code: 3, Message: fmt.Sprintf("run %s: sections failed: %s", report.ID, strings.Join(report.Failed(), ", "))}
}

func printSchema(a *app.App, outW io.Writer) error {
	tw := tabwriter.NewWriter(outW, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SECTION\tDEPENDS ON\tMODE")
	for _, s := range a.Registry().Sections() {
		mode := "read-write"
		switch {
		case s.Results:
			mode = "results"
		case s.ReadOnly:
			mode = "read-only"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, strings.Join(s.DependsOn, ","), mode)
	}
	return tw.Flush()
}

func printUnits(a *app.App, outW io.Writer) error {
	tw := tabwriter.NewWriter(outW, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "UNIT\tQUANTITY\tINDEX")
	for _, e := range a.Table().Units() {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", e.Unit, e.Code.Quantity, e.Code.Index)
	}
	return tw.Flush()
}

// runDoc implements 'doc get' and 'doc set'. YAML documents are edited
// through their JSON form and written back as YAML.
func runDoc(args []string, outW io.Writer) error {
	path := args[1]
	doc, err := app.ReadDocument(path)
	if err != nil {
		return err
	}
	raw, err := doc.MarshalJSON()
	if err != nil {
		return err
	}

	switch args[0] {
	case "get":
		v, ok := document.Query(raw, args[2])
		if !ok {
			return &ExitError{Code: 1, Message: fmt.Sprintf("path %q not found in %s", args[2], path)}
		}
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(outW, string(out))
		return nil
	case "set":
		patched, err := document.Patch(raw, args[2], args[3])
		if err != nil {
			return err
		}
		updated, err := document.Parse(patched)
		if err != nil {
			return err
		}
		data, err := app.EncodeDocument(updated, app.FormatOf(path))
		if err != nil {
			return err
		}
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		return os.WriteFile(path, data, info.Mode().Perm())
	}
	return usageError("unknown doc subcommand %q", args[0])
}
