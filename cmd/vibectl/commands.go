package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/archive"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/templates"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/vfs"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/sandbox/assembler"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/sandbox/headless"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/sandbox/vendor"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
)

type runner struct {
	cfg    *config.Config
	logger *log.Logger
	out    io.Writer
}

func (r *runner) register() []*cli.Command {
	return []*cli.Command{
		{
			Name:      "build",
			Usage:     "Assemble a directory into a preview document",
			ArgsUsage: "<dir>",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "output",
					Aliases: []string{"o"},
					Usage:   "Write the document here instead of stdout",
				},
			},
			Action: r.build,
		},
		{
			Name:      "run",
			Usage:     "Execute a directory's scripts headlessly and print the console",
			ArgsUsage: "<dir>",
			Flags: []cli.Flag{
				&cli.DurationFlag{
					Name:  "timeout",
					Usage: "Execution timeout, timers included",
					Value: r.cfg.Sandbox.HeadlessTimeout,
				},
			},
			Action: r.run,
		},
		{
			Name:      "export",
			Usage:     "Package a directory as tar, tar.gz or tar.zst",
			ArgsUsage: "<dir>",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "format",
					Aliases: []string{"f"},
					Usage:   "Archive format",
					Value:   string(archive.FormatTarGzip),
				},
				&cli.StringFlag{
					Name:     "output",
					Aliases:  []string{"o"},
					Usage:    "Archive path",
					Required: true,
				},
			},
			Action: r.export,
		},
		{
			Name:   "templates",
			Usage:  "List built-in templates",
			Action: r.templates,
		},
	}
}

// load reads a directory the way the server imports templates
func (r *runner) load(ctx context.Context, cmd *cli.Command) ([]*vfs.Node, error) {
	dir := cmd.Args().First()
	if dir == "" {
		return nil, errors.New("missing <dir> argument")
	}
	loader, err := templates.NewLoader(r.cfg.Templates.Ignore, nil)
	if err != nil {
		return nil, err
	}
	t, err := loader.Load(ctx, filepath.Base(dir), dir)
	if err != nil {
		return nil, err
	}
	nodes, err := t.Nodes()
	if err != nil {
		return nil, err
	}
	r.logger.Debug("loaded directory", "dir", dir, "files", len(t.Files))
	return nodes, nil
}

func (r *runner) build(ctx context.Context, cmd *cli.Command) error {
	nodes, err := r.load(ctx, cmd)
	if err != nil {
		return err
	}
	mirror, err := vendor.New(vendor.Config{
		Mode:     vendor.ModeCDN,
		React:    r.cfg.Vendor.React,
		ReactDOM: r.cfg.Vendor.ReactDOM,
		Babel:    r.cfg.Vendor.Babel,
	}, nil, nil)
	if err != nil {
		return err
	}
	deps, err := mirror.Deps(ctx)
	if err != nil {
		return err
	}

	// Files resolve to their paths so the document works next to them
	doc, err := assembler.Assemble(vfs.FromNodes(nodes).Flatten(), func(f *vfs.Node) string { return f.ID }, assembler.Options{Deps: deps})
	if err != nil {
		return err
	}
	if tags, err := assembler.Inspect(doc.HTML); err == nil {
		for _, tag := range tags {
			r.logger.Debug("tag", "kind", tag.Kind, "file", tag.File, "head", tag.InHead)
		}
	}

	output := cmd.String("output")
	if output == "" {
		_, err := io.WriteString(r.out, doc.HTML)
		return err
	}
	if err := os.WriteFile(output, []byte(doc.HTML), 0o644); err != nil {
		return err
	}
	r.logger.Info("document written", "path", output, "root", doc.Root, "babel", doc.UsesBabel())
	return nil
}

func (r *runner) run(ctx context.Context, cmd *cli.Command) error {
	nodes, err := r.load(ctx, cmd)
	if err != nil {
		return err
	}

	hcfg := headless.DefaultConfig()
	hcfg.Timeout = cmd.Duration("timeout")
	hcfg.Size = 1
	pool := headless.NewPool(hcfg, nil, nil)
	defer pool.Close()

	result, err := pool.Execute(ctx, vfs.FromNodes(nodes).Flatten())
	if err != nil {
		return err
	}
	for _, m := range result.Messages {
		fmt.Fprintln(r.out, m.Format())
	}
	for _, f := range result.Skipped {
		r.logger.Warn("needs a browser, skipped", "file", f)
	}
	if result.TimedOut {
		r.logger.Warn("execution timed out", "timeout", hcfg.Timeout)
	}
	r.logger.Debug("run finished", "files", len(result.Files), "duration", result.Duration.Round(time.Millisecond))

	if result.Failed() {
		r.logger.Error("run failed", "errors", len(result.Errors()))
		return errChecksFailed
	}
	return nil
}

func (r *runner) export(ctx context.Context, cmd *cli.Command) error {
	format, err := archive.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	nodes, err := r.load(ctx, cmd)
	if err != nil {
		return err
	}

	f, err := os.Create(cmd.String("output"))
	if err != nil {
		return err
	}
	if err := archive.Export(f, nodes, format, time.Now()); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	r.logger.Info("archive written", "path", cmd.String("output"), "format", format)
	return nil
}

func (r *runner) templates(_ context.Context, _ *cli.Command) error {
	for _, t := range templates.NewLibrary().List() {
		fmt.Fprintf(r.out, "%-12s %s\n", t.ID, t.Name)
	}
	return nil
}
