package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"knowshowgo/internal/scheduler"
)

var (
	scheduleHour     int
	scheduleMinute   int
	schedulePriority int
	scheduleNotes    string
	watchInterval    time.Duration
)

// scheduleCmd groups time-rule subcommands
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run time-of-day rules that create tasks and queue work",
}

// scheduleWatchCmd ticks the scheduler until interrupted
var scheduleWatchCmd = &cobra.Command{
	Use:   "watch <title>...",
	Short: "Watch the clock and fire the given rule when it matches",
	Long: `Registers a rule for the given title at --hour/--minute and ticks
the scheduler until the command is interrupted. Each firing creates a task,
stores a Task node, and enqueues it on the default queue.

Example:
  ksg schedule watch "morning review" --hour 9 --minute 0`,
	Args: cobra.MinimumNArgs(1),
	RunE: watchSchedule,
}

func init() {
	scheduleWatchCmd.Flags().IntVar(&scheduleHour, "hour", 9, "hour to fire (0-23)")
	scheduleWatchCmd.Flags().IntVar(&scheduleMinute, "minute", 0, "minute to fire (0-59)")
	scheduleWatchCmd.Flags().IntVar(&schedulePriority, "priority", 1, "task priority")
	scheduleWatchCmd.Flags().StringVar(&scheduleNotes, "notes", "", "task notes")
	scheduleWatchCmd.Flags().DurationVar(&watchInterval, "interval", 20*time.Second, "tick interval")
	scheduleCmd.AddCommand(scheduleWatchCmd)
}

func watchSchedule(cmd *cobra.Command, args []string) error {
	title := strings.Join(args, " ")

	ctx := cmd.Context()
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	rule := scheduler.TimeRule{
		Title:    title,
		Notes:    scheduleNotes,
		Hour:     scheduleHour,
		Minute:   scheduleMinute,
		Priority: schedulePriority,
	}
	if err := rt.scheduler.AddRule(rule); err != nil {
		return err
	}
	logger.Info("Watching schedule",
		zap.String("title", title),
		zap.Int("hour", scheduleHour),
		zap.Int("minute", scheduleMinute))
	fmt.Printf("Watching for %02d:%02d (%s). Ctrl-C to stop.\n", scheduleHour, scheduleMinute, title)

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			for _, fired := range rt.scheduler.Tick(ctx, now) {
				fmt.Printf("Fired %q at %s\n", fired, now.Format(time.Kitchen))
			}
		}
	}
}
