package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/forumly/forumcore/internal/domain/faults"
)

func reconcileCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Inspect and retry captured payments awaiting their membership record",
	}
	cmd.AddCommand(reconcileRunCmd(rt))
	cmd.AddCommand(reconcileListCmd(rt))
	return cmd
}

func reconcileRunCmd(rt *runtime) *cobra.Command {
	var intentID string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one reconcile pass, or reconcile a single intent with --intent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if intentID != "" {
				record, err := rt.services.Membership.Reconcile(cmd.Context(), intentID)
				if err != nil {
					if errors.Is(err, faults.ErrReconciliation) {
						fmt.Printf("intent %s still pending: %v\n", intentID, err)
						return nil
					}
					return err
				}
				fmt.Printf("intent %s reconciled: member=%t badge=%s amount=%s\n",
					intentID, record.IsMember, record.Badge, record.PaidAmount.String())
				return nil
			}

			result, err := rt.services.ReconcileJob.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("claimed=%d reconciled=%d pending=%d failed=%d\n", result.Claimed, result.Reconciled, result.Pending, result.Failed)
			return nil
		},
	}

	cmd.Flags().StringVar(&intentID, "intent", "", "reconcile only this intent id")
	return cmd
}

func reconcileListCmd(rt *runtime) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending reconciliations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			items, err := rt.services.Outbox.List(cmd.Context(), limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "INTENT\tSTAGE\tUSER\tAMOUNT\tCONFIRMED\tATTEMPTS\tNEXT\tLAST ERROR")
			for _, item := range items {
				stage := "entitlement"
				if item.VerifyPayment {
					stage = "verify"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
					item.IntentID,
					stage,
					item.UserID,
					item.Amount.String(),
					item.ConfirmedAt.Format(time.RFC3339),
					item.Attempts,
					item.NextAttemptAt.Format(time.RFC3339),
					item.LastError,
				)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "maximum rows")
	return cmd
}
