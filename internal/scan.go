package internal

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/starford/skeletab/internal/models"
	"github.com/starford/skeletab/internal/project"
)

// Scan prints the inventory of the configured project root without starting
// the server or touching the index.
func Scan(_ context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := newLogger(cfg, os.Stderr)
	entries, err := project.New(logger).Scan(cfg.Project.Root)
	if err != nil {
		return err
	}
	root, _ := filepath.Abs(cfg.Project.Root)
	return writeReport(app.out, root, entries, app.noColor)
}

func writeReport(out io.Writer, root string, entries []models.TableEntry, noColor bool) error {
	paint := func(attr color.Attribute, s string) string {
		c := color.New(attr)
		if noColor {
			c.DisableColor()
		}
		return c.Sprint(s)
	}

	counts := map[string]int{}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, e := range entries {
		counts[e.Status]++

		var status string
		switch e.Status {
		case models.StatusCompleted:
			status = paint(color.FgGreen, e.Status)
		case models.StatusInProgress:
			status = paint(color.FgYellow, e.Status)
		case models.StatusNotStarted:
			status = paint(color.FgRed, e.Status)
		default:
			status = paint(color.FgCyan, e.Status)
		}

		image := "-"
		if e.ImagePath != "" {
			image = filepath.Base(e.ImagePath)
		}
		rel, err := filepath.Rel(root, e.GridPath)
		if err != nil {
			rel = e.GridPath
		}
		line := fmt.Sprintf("%s\t%s\t%s\t%s\t%s", e.PaperID, e.TableID, status, rel, image)
		if len(e.Shadowed) > 0 {
			line += paint(color.FgHiMagenta, fmt.Sprintf("  [%d shadowed]", len(e.Shadowed)))
		}
		fmt.Fprintln(tw, line)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(out, "\n%d tables: %s completed, %s in progress, %s not started\n",
		len(entries),
		paint(color.FgGreen, fmt.Sprint(counts[models.StatusCompleted])),
		paint(color.FgYellow, fmt.Sprint(counts[models.StatusInProgress])),
		paint(color.FgRed, fmt.Sprint(counts[models.StatusNotStarted])))
	return err
}
