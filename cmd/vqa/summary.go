package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/visionqa/vqa/internal/project"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show or refresh the project summary",
}

var summaryShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the project summary, fetching it on first use",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		section, _ := cmd.Flags().GetString("section")

		return withApp(func(a *app) error {
			s, err := a.session.Pipeline.Summary(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if section != "" {
				body, ok := s.Lookup(section)
				if !ok {
					return fmt.Errorf("no %q section in the summary", section)
				}
				fmt.Fprintln(out, body)
				return nil
			}
			if asJSON {
				return printJSON(out, s)
			}
			printSummary(out, s)
			return nil
		})
	},
}

var summaryClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop the cached summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			if err := a.session.Pipeline.ClearSummary(); err != nil {
				return err
			}
			printSuccess("Summary cleared")
			return nil
		})
	},
}

var summaryUpdateCmd = &cobra.Command{
	Use:   "update-context",
	Short: "Re-embed the project links and drop the cached summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			printStep("Refreshing embeddings")
			if err := a.session.Pipeline.UpdateContext(cmd.Context()); err != nil {
				return err
			}
			printSuccess("Context updated; the summary will be fetched again on next use")
			return nil
		})
	},
}

func init() {
	summaryShowCmd.Flags().Bool("json", false, "print the sections as a JSON object")
	summaryShowCmd.Flags().String("section", "", "print only the named section")
	summaryCmd.AddCommand(summaryShowCmd)
	summaryCmd.AddCommand(summaryClearCmd)
	summaryCmd.AddCommand(summaryUpdateCmd)
}

func printSummary(out io.Writer, s project.Summary) {
	for i, sec := range s.Sections() {
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintln(out, colorize(colorBold, "## "+strings.TrimSuffix(sec.Title, ":")))
		fmt.Fprintln(out, sec.Body)
	}
}
