package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/forumly/forumcore/internal/domain/enums"
	"github.com/forumly/forumcore/internal/domain/faults"
	"github.com/forumly/forumcore/internal/domain/model"
	"github.com/forumly/forumcore/internal/repo/forumapi"
)

func reportedCmd(rt *runtime) *cobra.Command {
	var admin string

	cmd := &cobra.Command{
		Use:   "reported",
		Short: "Work the reported comment queue",
	}
	cmd.PersistentFlags().StringVar(&admin, "as", "", "admin email to act as (required)")
	_ = cmd.MarkPersistentFlagRequired("as")

	cmd.AddCommand(reportedListCmd(rt, &admin))
	cmd.AddCommand(reportedResolveCmd(rt, &admin))
	return cmd
}

func reportedListCmd(rt *runtime, admin *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List reported comments, most recent report first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := actingAs(cmd.Context(), *admin)
			seq, err := rt.services.Moderation.ListReported(ctx, *admin)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "POST\tCOMMENT\tFEEDBACK\tREPORTED BY\tREPORTED AT\tTEXT")
			for view, err := range seq {
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					view.PostID,
					view.CommentID,
					view.Feedback,
					view.ReportedByEmail,
					view.ReportedAt.Format(time.RFC3339),
					view.Text,
				)
			}
			return tw.Flush()
		},
	}
}

func reportedResolveCmd(rt *runtime, admin *string) *cobra.Command {
	var action string

	cmd := &cobra.Command{
		Use:   "resolve POST_ID COMMENT_ID",
		Short: "Delete a reported comment or clear its report",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, ok := enums.ParseResolveAction(action)
			if !ok {
				return faults.ErrInvalidAction
			}

			ctx := actingAs(cmd.Context(), *admin)
			ref := model.CommentRef{PostID: args[0], CommentID: args[1]}
			if _, err := rt.services.Moderation.Resolve(ctx, ref, parsed, *admin); err != nil {
				return err
			}
			fmt.Printf("comment %s/%s: %s\n", ref.PostID, ref.CommentID, parsed)
			return nil
		},
	}

	cmd.Flags().StringVarP(&action, "action", "a", "", "delete or clear")
	_ = cmd.MarkFlagRequired("action")
	return cmd
}

func actingAs(ctx context.Context, admin string) context.Context {
	return forumapi.WithCredential(ctx, forumapi.Credential{ActorID: admin})
}
