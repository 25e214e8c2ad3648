package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/visionqa/vqa/internal/stage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show service reachability and what the session has cached",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			showStatus(cmd.Context(), a)
			return nil
		})
	},
}

func showStatus(ctx context.Context, a *app) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	services := []struct {
		label string
		svc   stage.Service
		url   string
	}{
		{"Ingest service", stage.ServiceIngest, a.cfg.Services.IngestURL},
		{"Agent service", stage.ServiceAgent, a.cfg.Services.AgentURL},
	}
	results := make([]error, len(services))
	var g errgroup.Group
	for i, s := range services {
		g.Go(func() error {
			results[i] = a.stages.Ping(ctx, s.svc)
			return nil
		})
	}
	g.Wait()

	for i, s := range services {
		if results[i] != nil {
			printStatus(s.label, "%s", colorize(colorRed, "unreachable at "+s.url))
		} else {
			printStatus(s.label, "up at %s", s.url)
		}
	}

	sess := a.session
	printStatus("Onboarding", "%s", sess.Wizard().State())
	if name, err := sess.Pipeline.ApplicationName(); err == nil {
		printStatus("Application", "%s", name)
	}
	printStatus("Chat turns", "%d", len(sess.Chat.Snapshot()))
	_, ok := sess.Pipeline.CachedSummary()
	printStatus("Summary", "%s", cachedLabel(ok))
	_, ok = sess.Pipeline.CachedAPIDetails()
	printStatus("API details", "%s", cachedLabel(ok))
	_, ok = sess.Pipeline.Suite()
	printStatus("BDD suite", "%s", cachedLabel(ok))
	if rep, ok := sess.Pipeline.Report(); ok {
		printStatus("Report", "%s", rep.URL)
	} else {
		printStatus("Report", "none")
	}

	if a.db != nil {
		if used, err := a.db.UsedBytes(); err == nil {
			printStatus("Storage", "%d of %d bytes used", used, a.cfg.Storage.QuotaBytes)
		}
	}
	printStatus("Data dir", "%s", a.cfg.Storage.DataDir)
}

func cachedLabel(ok bool) string {
	if ok {
		return "cached"
	}
	return "not fetched"
}
