package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	voteCmd := &cobra.Command{Use: "vote", Short: "Vote operations"}

	var kind string
	castCmd := &cobra.Command{
		Use:   "cast TARGET_KIND TARGET_ID",
		Short: "Cast or flip a vote on a question or answer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doPostJSON(fmt.Sprintf("/v0/votes/%s/%s", args[0], args[1]), map[string]interface{}{"kind": kind})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	castCmd.Flags().StringVarP(&kind, "kind", "d", "up", "Vote kind: up or down")
	voteCmd.AddCommand(castCmd)

	removeCmd := &cobra.Command{
		Use:   "remove TARGET_KIND TARGET_ID",
		Short: "Remove your vote",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doDelete(fmt.Sprintf("/v0/votes/%s/%s", args[0], args[1]))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	voteCmd.AddCommand(removeCmd)

	getCmd := &cobra.Command{
		Use:   "get TARGET_KIND TARGET_ID",
		Short: "Show your current vote on a target",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doGet(fmt.Sprintf("/v0/votes/%s/%s", args[0], args[1]), nil)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	voteCmd.AddCommand(getCmd)

	rootCmd.AddCommand(voteCmd)
}
