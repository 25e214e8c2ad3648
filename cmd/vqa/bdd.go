package main

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/visionqa/vqa/internal/project"
	"github.com/visionqa/vqa/internal/report"
)

var bddCmd = &cobra.Command{
	Use:   "bdd",
	Short: "Generate or show the BDD scenario suite",
}

var bddGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a BDD suite from the saved API details",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			printStep("Generating scenarios")
			suite, err := a.session.Pipeline.GenerateBDD(cmd.Context())
			if err != nil {
				return err
			}
			printSuite(cmd.OutOrStdout(), suite)
			printSuccess("%d scenario block(s) generated", len(suite))
			return nil
		})
	},
}

var bddShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the generated suite",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			suite, ok := a.session.Pipeline.Suite()
			if !ok {
				printWarning("No suite yet. Run 'vqa bdd generate'.")
				return nil
			}
			printSuite(cmd.OutOrStdout(), suite)
			return nil
		})
	},
}

func init() {
	bddCmd.AddCommand(bddGenerateCmd)
	bddCmd.AddCommand(bddShowCmd)
}

func printSuite(out io.Writer, suite project.Suite) {
	for i, block := range suite {
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintln(out, block)
	}
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Run the suite or show the last report",
}

var reportRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the generated suite against the API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			printStep("Running scenarios")
			rep, err := a.session.Pipeline.RunBDD(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rep.URL)
			printSuccess("Report ready")
			return nil
		})
	},
}

// newRenderer is swapped in tests.
var newRenderer = func() *report.Renderer {
	return report.NewRenderer(&http.Client{Timeout: 30 * time.Second})
}

var reportShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the last report URL, or the report itself with --render",
	RunE: func(cmd *cobra.Command, args []string) error {
		render, _ := cmd.Flags().GetBool("render")

		return withApp(func(a *app) error {
			rep, ok := a.session.Pipeline.Report()
			if !ok {
				printWarning("No report yet. Run 'vqa report run'.")
				return nil
			}
			out := cmd.OutOrStdout()
			if !render {
				fmt.Fprintln(out, rep.URL)
				return nil
			}
			r, err := newRenderer().Render(cmd.Context(), rep.URL)
			if err != nil {
				return err
			}
			if r.Title != "" {
				fmt.Fprintln(out, colorize(colorBold, "# "+r.Title))
				fmt.Fprintln(out)
			}
			fmt.Fprintln(out, r.Markdown)
			return nil
		})
	},
}

func init() {
	reportShowCmd.Flags().Bool("render", false, "fetch the report and print it as markdown")
	reportCmd.AddCommand(reportRunCmd)
	reportCmd.AddCommand(reportShowCmd)
}
