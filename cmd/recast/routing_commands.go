package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"recast/internal/store"
)

func newRoutingCommand(ctx *commandContext) *cobra.Command {
	routingCmd := &cobra.Command{
		Use:   "routing",
		Short: "Review routing decisions",
	}

	routingCmd.AddCommand(newRoutingListCommand(ctx))
	routingCmd.AddCommand(newRoutingDecideCommand(ctx, store.RoutingApproved))
	routingCmd.AddCommand(newRoutingDecideCommand(ctx, store.RoutingRejected))

	return routingCmd
}

func newRoutingListCommand(ctx *commandContext) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List routing decisions by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(s *store.Store) error {
				decisions, err := s.RoutingDecisionsByStatus(cmd.Context(), store.RoutingStatus(status))
				if err != nil {
					return err
				}
				if len(decisions) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No %s routing decisions\n", status)
					return nil
				}
				rows := make([][]string, 0, len(decisions))
				for _, d := range decisions {
					rows = append(rows, []string{
						strconv.FormatInt(d.ID, 10),
						strconv.FormatInt(d.PostID, 10),
						strconv.FormatInt(d.DestinationID, 10),
						strconv.FormatFloat(d.MatchScore, 'f', 0, 64),
						d.MatchReason,
						yesNo(d.UserOverride),
					})
				}
				table := renderTable(
					[]string{"ID", "Post", "Destination", "Score", "Reason", "Override"},
					rows,
					[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", string(store.RoutingPending), "Routing status to list")
	return cmd
}

func newRoutingDecideCommand(ctx *commandContext, next store.RoutingStatus) *cobra.Command {
	use, short, eventType := "approve <id>", "Approve a pending routing decision", "routing_approved"
	if next == store.RoutingRejected {
		use, short, eventType = "reject <id>", "Reject a routing decision", "routing_rejected"
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
			return ctx.withStore(func(s *store.Store) error {
				decision, err := s.TransitionRoutingDecision(cmd.Context(), id, next, true)
				if err != nil {
					return err
				}
				message := fmt.Sprintf("Routing decision %d %s by operator", decision.ID, next)
				if _, err := s.AppendActivity(cmd.Context(), eventType, message, "routing_decision", &decision.ID, ""); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Routing decision %d is now %s\n", decision.ID, decision.Status)
				return nil
			})
		},
	}
}
