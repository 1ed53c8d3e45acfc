package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/ricesearch/fairrank/internal/bus"
	"github.com/ricesearch/fairrank/internal/report"
)

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Follow report events",
		Long: `Events prints a line for every report announced on the configured event bus
until interrupted. With --journal it instead replays a server event journal
file and exits.`,
		Example: `  FAIRRANK_BUS_TYPE=kafka FAIRRANK_KAFKA_BROKERS=localhost:9092 fairrank events
  fairrank events --journal /var/lib/fairrank/events.jsonl --since 24h`,
		Args: cobra.NoArgs,
		RunE: runEvents,
	}

	cmd.Flags().String("journal", "", "replay this event journal instead of subscribing")
	cmd.Flags().Duration("since", 0, "with --journal, only events newer than this")
	cmd.Flags().Int("limit", 0, "with --journal, at most this many events (0 = all)")

	return cmd
}

func runEvents(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if path, _ := cmd.Flags().GetString("journal"); path != "" {
		since, _ := cmd.Flags().GetDuration("since")
		limit, _ := cmd.Flags().GetInt("limit")

		var cutoff time.Time
		if since > 0 {
			cutoff = time.Now().Add(-since)
		}
		events, err := bus.ReadEvents(path, bus.TopicReportCreated, cutoff, limit)
		if err != nil {
			return err
		}
		for _, le := range events {
			printEvent(out, le.Event)
		}
		return nil
	}

	eventBus, err := bus.NewBus(cfg.Bus, log)
	if err != nil {
		return fmt.Errorf("failed to create event bus: %w", err)
	}
	defer eventBus.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	err = eventBus.Subscribe(ctx, bus.TopicReportCreated, func(_ context.Context, event bus.Event) error {
		printEvent(out, event)
		return nil
	})
	if err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}

// printEvent writes one line per report: when, which report, and the lowest
// disparity ratio across its features.
func printEvent(w io.Writer, event bus.Event) {
	if event.Type != bus.EventReportCreated {
		return
	}
	var rep report.Report
	if err := event.Decode(&rep); err != nil {
		fmt.Fprintf(w, "%s  %s  undecodable: %v\n", time.UnixMilli(event.Timestamp).UTC().Format(time.RFC3339), event.ID, err)
		return
	}

	worst := "n/a"
	if feature, metric, ratio, ok := lowestRatio(&rep); ok {
		worst = fmt.Sprintf("%.4f (%s/%s)", ratio, feature, metric)
	}
	fmt.Fprintf(w, "%s  %s  %-20s  items=%d  min_ratio=%s\n",
		rep.CreatedAt.Format(time.RFC3339), rep.ID, rep.Dataset, rep.Items, worst)
}

func lowestRatio(rep *report.Report) (feature, metric string, ratio float64, ok bool) {
	ratio = math.Inf(1)
	for _, f := range rep.Features {
		for _, m := range f.Metrics {
			if m.Ratio != nil && *m.Ratio < ratio {
				feature, metric, ratio, ok = f.Name, m.Name, *m.Ratio, true
			}
		}
	}
	return feature, metric, ratio, ok
}
