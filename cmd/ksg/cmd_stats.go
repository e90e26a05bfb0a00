package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

// statsCmd reports store counts
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show memory store statistics",
	RunE:  showStats,
}

func showStats(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	stats, err := rt.store.GetStats()
	if err != nil {
		return fmt.Errorf("failed to read stats: %w", err)
	}

	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Printf("%s %s\n\n", rt.cfg.Name, rt.cfg.Version)
	for _, k := range keys {
		fmt.Printf("  %-24s %d\n", k, stats[k])
	}
	return nil
}
