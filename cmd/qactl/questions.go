package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	questionsCmd := &cobra.Command{Use: "questions", Short: "Question operations"}

	var title, body, tags string
	askCmd := &cobra.Command{
		Use:   "ask",
		Short: "Post a question",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]interface{}{"title": title, "body": body}
			if tags != "" {
				payload["tags"] = strings.Split(tags, ",")
			}
			data, err := doPostJSON("/v0/questions", payload)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	askCmd.Flags().StringVarP(&title, "title", "t", "", "Question title (required)")
	askCmd.Flags().StringVarP(&body, "body", "b", "", "Question body (required)")
	askCmd.Flags().StringVar(&tags, "tags", "", "Comma-separated tags")
	_ = askCmd.MarkFlagRequired("title")
	_ = askCmd.MarkFlagRequired("body")
	questionsCmd.AddCommand(askCmd)

	getCmd := &cobra.Command{
		Use:   "get QUESTION_ID",
		Short: "Get a question with its answers and comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doGet("/v0/questions/"+args[0], nil)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	questionsCmd.AddCommand(getCmd)

	var listTags, author string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List questions",
		RunE: func(cmd *cobra.Command, args []string) error {
			query := map[string]string{}
			if listTags != "" {
				query["tags"] = listTags
			}
			if author != "" {
				query["author"] = author
			}
			data, err := doGet("/v0/questions", query)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	listCmd.Flags().StringVar(&listTags, "tags", "", "Comma-separated tag filter")
	listCmd.Flags().StringVar(&author, "author", "", "Author filter")
	questionsCmd.AddCommand(listCmd)

	var content string
	answerCmd := &cobra.Command{
		Use:   "answer QUESTION_ID",
		Short: "Post an answer to a question",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doPostJSON("/v0/questions/"+args[0]+"/answers", map[string]interface{}{"content": content})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	answerCmd.Flags().StringVarP(&content, "content", "c", "", "Answer content (required)")
	_ = answerCmd.MarkFlagRequired("content")
	questionsCmd.AddCommand(answerCmd)

	var answerID string
	acceptCmd := &cobra.Command{
		Use:   "accept QUESTION_ID",
		Short: "Accept an answer on your question",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doPostJSON("/v0/questions/"+args[0]+"/accept", map[string]interface{}{"answerId": answerID})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	acceptCmd.Flags().StringVar(&answerID, "answer", "", "Answer ID (required)")
	_ = acceptCmd.MarkFlagRequired("answer")
	questionsCmd.AddCommand(acceptCmd)

	rootCmd.AddCommand(questionsCmd)
}
