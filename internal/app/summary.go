package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alanyoungcy/spreadbot/internal/domain"
	"github.com/alanyoungcy/spreadbot/internal/executor"
	"github.com/alanyoungcy/spreadbot/internal/notify"
	"github.com/alanyoungcy/spreadbot/internal/server/handler"
)

// summaryText renders a status snapshot as a short operator message.
func summaryText(s handler.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s run %s: %d cycles in %s\n",
		s.Market, s.RunID, s.Cycles, (time.Duration(s.UptimeSeconds) * time.Second).String())

	outcomes := make([]domain.CycleOutcome, 0, len(s.Outcomes))
	for o := range s.Outcomes {
		outcomes = append(outcomes, o)
	}
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i] < outcomes[j] })
	for _, o := range outcomes {
		fmt.Fprintf(&b, "  %s: %d\n", o, s.Outcomes[o])
	}

	fmt.Fprintf(&b, "burst %d/%d, interval %dms", s.Burst.Remaining, s.Burst.Ceiling, s.IntervalMs)
	if s.LastTrade != nil {
		fmt.Fprintf(&b, ", last trade %s", s.LastTrade.Format(time.RFC3339))
	}
	if s.Simulate {
		b.WriteString(" (simulation)")
	}
	return b.String()
}

// runSummary notifies a status summary on schedule until ctx is done.
func runSummary(ctx context.Context, schedule string, n executor.Notifier, snapshot func() handler.Status, logger *slog.Logger) error {
	c := cron.New(cron.WithSeconds())
	_, err := c.AddFunc(schedule, func() {
		if err := n.Notify(ctx, notify.EventSummary, "spreadbot summary", summaryText(snapshot())); err != nil {
			logger.Warn("summary notification failed", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return fmt.Errorf("app: summary schedule %q: %w", schedule, err)
	}
	c.Start()
	logger.Info("summary scheduled", slog.String("schedule", schedule))
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
