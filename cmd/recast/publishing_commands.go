package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"recast/internal/jobs"
	"recast/internal/store"
	"recast/internal/workers"
)

func newPublishingCommand(ctx *commandContext) *cobra.Command {
	publishingCmd := &cobra.Command{
		Use:   "publishing",
		Short: "Review and drive publishing jobs",
	}

	publishingCmd.AddCommand(newPublishingListCommand(ctx))
	publishingCmd.AddCommand(newPublishingRequeueCommand(ctx, store.PublishingAwaitingApproval))
	publishingCmd.AddCommand(newPublishingRequeueCommand(ctx, store.PublishingFailed))

	return publishingCmd
}

func newPublishingListCommand(ctx *commandContext) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List publishing jobs by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(s *store.Store) error {
				jobsList, err := s.PublishingJobsByStatus(cmd.Context(), store.PublishingStatus(status))
				if err != nil {
					return err
				}
				if len(jobsList) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No %s publishing jobs\n", status)
					return nil
				}
				rows := make([][]string, 0, len(jobsList))
				for _, job := range jobsList {
					rows = append(rows, []string{
						strconv.FormatInt(job.ID, 10),
						strconv.FormatInt(job.RoutingDecisionID, 10),
						strconv.FormatInt(job.Attempts, 10),
						job.PublishedMediaID,
						truncate(job.Error, 60),
					})
				}
				table := renderTable(
					[]string{"ID", "Decision", "Attempts", "Media ID", "Error"},
					rows,
					[]columnAlignment{alignRight, alignRight, alignRight, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", string(store.PublishingAwaitingApproval), "Publishing status to list")
	return cmd
}

// newPublishingRequeueCommand builds both manual reactivation commands:
// approving an awaiting_approval job and retrying a failed one. Either way
// the job returns to queued and a publish job is enqueued for the daemon.
func newPublishingRequeueCommand(ctx *commandContext, from store.PublishingStatus) *cobra.Command {
	use, short, eventType := "approve <id>", "Approve a publishing job awaiting review", "publish_approved"
	if from == store.PublishingFailed {
		use, short, eventType = "retry <id>", "Retry a failed publishing job", "publish_retried"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withQueue(func(s *store.Store, queue *jobs.Durable) error {
				job, err := s.GetPublishingJob(cmd.Context(), id)
				if err != nil {
					return err
				}
				if job == nil {
					return fmt.Errorf("publishing job %d not found", id)
				}
				if job.Status != from {
					return fmt.Errorf("publishing job %d is %s, expected %s", id, job.Status, from)
				}
				if _, err := s.TransitionPublishingJob(cmd.Context(), id, store.PublishingQueued); err != nil {
					return err
				}
				if err := ctx.submit(cmd.Context(), queue, workers.QueuePublish, workers.PublishPayload{PublishingJobID: id}); err != nil {
					return err
				}
				message := fmt.Sprintf("Publishing job %d requeued by operator", id)
				if _, err := s.AppendActivity(cmd.Context(), eventType, message, "publishing_job", &id, ""); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Publishing job %d queued\n", id)
				return nil
			})
		},
	}
}

// truncate shortens s to at most max runes. Counting runes keeps
// multi-byte text, such as Hebrew error messages, intact.
func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
