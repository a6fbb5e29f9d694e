package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"recast/internal/jobs"
	"recast/internal/store"
	"recast/internal/workers"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pipeline and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(s *store.Store, queue *jobs.Durable) error {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)

				stats, err := s.Stats(cmd.Context())
				if err != nil {
					return err
				}

				for _, line := range renderSectionHeader("Pipeline", colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Entity", "Count"},
					buildPipelineRows(stats),
					[]columnAlignment{alignLeft, alignRight},
				))

				for _, line := range renderSectionHeader("Queues", colorize) {
					fmt.Fprintln(out, line)
				}
				queueRows, err := buildQueueRows(cmd, queue)
				if err != nil {
					return err
				}
				if len(queueRows) == 0 {
					fmt.Fprintln(out, "All queues are empty")
					return nil
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Queue", "Status", "Count"},
					queueRows,
					[]columnAlignment{alignLeft, alignLeft, alignRight},
				))
				return nil
			})
		},
	}
}

func buildPipelineRows(stats *store.PipelineStats) [][]string {
	rows := [][]string{
		{"Channels", strconv.FormatInt(stats.Channels, 10)},
		{"Destinations", strconv.FormatInt(stats.Destinations, 10)},
		{"Posts", strconv.FormatInt(stats.Posts, 10)},
		{"Viral posts", strconv.FormatInt(stats.ViralPosts, 10)},
	}
	for _, status := range sortedKeys(stats.RoutingByStatus) {
		rows = append(rows, []string{
			"Routing " + status,
			strconv.FormatInt(stats.RoutingByStatus[store.RoutingStatus(status)], 10),
		})
	}
	for _, status := range sortedKeys(stats.TranslationsByStatus) {
		rows = append(rows, []string{
			"Translations " + status,
			strconv.FormatInt(stats.TranslationsByStatus[store.TranslationStatus(status)], 10),
		})
	}
	for _, status := range sortedKeys(stats.PublishingByStatus) {
		rows = append(rows, []string{
			"Publishing " + status,
			strconv.FormatInt(stats.PublishingByStatus[store.PublishingStatus(status)], 10),
		})
	}
	return rows
}

func buildQueueRows(cmd *cobra.Command, queue *jobs.Durable) ([][]string, error) {
	var rows [][]string
	for _, name := range workers.Queues {
		counts, err := queue.QueueStats(cmd.Context(), name)
		if err != nil {
			return nil, err
		}
		statuses := make([]string, 0, len(counts))
		for status := range counts {
			statuses = append(statuses, status)
		}
		sort.Strings(statuses)
		for _, status := range statuses {
			rows = append(rows, []string{name, status, strconv.FormatInt(counts[status], 10)})
		}
	}
	return rows, nil
}

func sortedKeys[K ~string](m map[K]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	return keys
}
