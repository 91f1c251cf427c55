package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func tokenCmd(rt *runtime) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "token EMAIL",
		Short: "Issue a bearer token for local testing against the API",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			token, expiresAt, err := rt.services.JWT.GenerateAccessToken(args[0], name)
			if err != nil {
				return err
			}
			fmt.Println(token)
			fmt.Printf("# expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name claim")
	return cmd
}
