package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/visionqa/vqa/internal/project"
	"github.com/visionqa/vqa/internal/session"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Show or edit the extracted API base URL and endpoints",
}

var apiShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the API details, extracting them on first use",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetBool("raw")
		asJSON, _ := cmd.Flags().GetBool("json")

		return withApp(func(a *app) error {
			p := a.session.Pipeline
			d, err := p.APIDetails(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch {
			case raw:
				text, ok := p.RawAPIDetails()
				if !ok {
					return fmt.Errorf("no raw response stored")
				}
				fmt.Fprintln(out, text)
			case asJSON:
				return printJSON(out, d)
			default:
				printAPIDetails(out, d)
			}
			return nil
		})
	},
}

var apiSetBaseURLCmd = &cobra.Command{
	Use:   "set-base-url <url>",
	Short: "Replace the base URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editAPIDetails(cmd, func(p *session.Pipeline) error {
			return p.EditBaseURL(args[0])
		})
	},
}

var apiSetEndpointCmd = &cobra.Command{
	Use:   "set-endpoint <n> <method> <path>",
	Short: "Replace endpoint n (1-based)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		i, err := endpointIndex(args[0])
		if err != nil {
			return err
		}
		return editAPIDetails(cmd, func(p *session.Pipeline) error {
			return p.EditEndpoint(i, args[1], args[2])
		})
	},
}

var apiAddEndpointCmd = &cobra.Command{
	Use:   "add-endpoint <method> <path>",
	Short: "Append an endpoint",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editAPIDetails(cmd, func(p *session.Pipeline) error {
			return p.AddEndpoint(args[0], args[1])
		})
	},
}

var apiRemoveEndpointCmd = &cobra.Command{
	Use:   "remove-endpoint <n>",
	Short: "Remove endpoint n (1-based)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		i, err := endpointIndex(args[0])
		if err != nil {
			return err
		}
		return editAPIDetails(cmd, func(p *session.Pipeline) error {
			return p.RemoveEndpoint(i)
		})
	},
}

var apiMoveEndpointCmd = &cobra.Command{
	Use:   "move-endpoint <from> <to>",
	Short: "Move an endpoint to a new position (1-based)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := endpointIndex(args[0])
		if err != nil {
			return err
		}
		to, err := endpointIndex(args[1])
		if err != nil {
			return err
		}
		return editAPIDetails(cmd, func(p *session.Pipeline) error {
			return p.MoveEndpoint(from, to)
		})
	},
}

var apiClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop the cached API details",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			if err := a.session.Pipeline.ClearAPIDetails(); err != nil {
				return err
			}
			printSuccess("API details cleared")
			return nil
		})
	},
}

func init() {
	apiShowCmd.Flags().Bool("raw", false, "print the model response the details were extracted from")
	apiShowCmd.Flags().Bool("json", false, "print as JSON")
	apiCmd.AddCommand(apiShowCmd)
	apiCmd.AddCommand(apiSetBaseURLCmd)
	apiCmd.AddCommand(apiSetEndpointCmd)
	apiCmd.AddCommand(apiAddEndpointCmd)
	apiCmd.AddCommand(apiRemoveEndpointCmd)
	apiCmd.AddCommand(apiMoveEndpointCmd)
	apiCmd.AddCommand(apiClearCmd)
}

func endpointIndex(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid endpoint number %q", s)
	}
	return n - 1, nil
}

// editAPIDetails applies one draft edit and saves it. Each CLI invocation
// is its own process, so the draft never outlives the command.
func editAPIDetails(cmd *cobra.Command, edit func(p *session.Pipeline) error) error {
	return withApp(func(a *app) error {
		p := a.session.Pipeline
		if err := edit(p); err != nil {
			p.DiscardDraft()
			return err
		}
		d, err := p.SaveAPIDetails()
		if err != nil {
			return err
		}
		printAPIDetails(cmd.OutOrStdout(), d)
		return nil
	})
}

func printAPIDetails(out io.Writer, d project.APIDetails) {
	fmt.Fprintf(out, "%s %s\n", colorize(colorBold, "base_url:"), d.BaseURL)
	for i, e := range d.Endpoints {
		fmt.Fprintf(out, "%d. %s %s\n", i+1, e.Method, e.Path)
	}
}
