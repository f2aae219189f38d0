package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

func init() {
	var query, tags string
	var page, limit int
	searchCmd := &cobra.Command{
		Use:   "search",
		Short: "Search questions",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string]string{
				"q":     query,
				"page":  strconv.Itoa(page),
				"limit": strconv.Itoa(limit),
			}
			if tags != "" {
				params["tags"] = tags
			}
			data, err := doGet("/v0/search", params)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	searchCmd.Flags().StringVarP(&query, "query", "q", "", "Search query text (required)")
	searchCmd.Flags().StringVar(&tags, "tags", "", "Comma-separated tag filter")
	searchCmd.Flags().IntVarP(&page, "page", "p", 1, "Result page")
	searchCmd.Flags().IntVarP(&limit, "limit", "l", 20, "Results per page")
	_ = searchCmd.MarkFlagRequired("query")
	rootCmd.AddCommand(searchCmd)

	var topK int
	similarCmd := &cobra.Command{
		Use:   "similar QUESTION_ID",
		Short: "Find questions similar to an existing one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doGet("/v0/questions/"+args[0]+"/similar", map[string]string{"limit": strconv.Itoa(topK)})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	similarCmd.Flags().IntVarP(&topK, "limit", "l", 5, "Number of similar questions to return")
	rootCmd.AddCommand(similarCmd)
}
