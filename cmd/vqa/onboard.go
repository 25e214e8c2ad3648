package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/visionqa/vqa/internal/session"
)

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Onboard a project: name, links, files and description",
	Long: `Onboard a project through the four-step wizard and submit it for ingestion.

Without flags the wizard prompts for each step. With flags every step is
filled from them and the form is submitted right away. An interrupted
onboarding resumes where it stopped.

Examples:
  vqa onboard
  vqa onboard --name "Fraud Detection" --link https://jira.example.com/PROJ \
    --file 'docs/**/*.pdf' --description "Scores card transactions"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := onboardOptions{}
		opts.name, _ = cmd.Flags().GetString("name")
		opts.links, _ = cmd.Flags().GetStringSlice("link")
		opts.files, _ = cmd.Flags().GetStringSlice("file")
		opts.description, _ = cmd.Flags().GetString("description")

		return withApp(func(a *app) error {
			wiz := a.session.Wizard()
			if wiz.State().Phase == session.PhaseDone {
				printWarning("Project %q is already onboarded. Run 'vqa onboard reset' to start over.", wiz.Form().ProjectName)
				return nil
			}

			var err error
			if opts.empty() {
				err = onboardInteractive(cmd.Context(), wiz, cmd.InOrStdin(), cmd.ErrOrStderr())
			} else {
				err = onboardFromFlags(cmd.Context(), wiz, opts)
			}
			if err != nil {
				return err
			}
			printSuccess("Project %q onboarded", wiz.Form().ProjectName)
			return nil
		})
	},
}

var onboardStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the onboarding wizard state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			wiz := a.session.Wizard()
			form := wiz.Form()
			printStatus("State", "%s", wiz.State())
			printStatus("Project", "%s", form.ProjectName)
			for _, l := range form.Links {
				printStatus("Link", "%s", l)
			}
			for _, f := range form.Attachments {
				printStatus("File", "%s (%s)", f.Name, f.ContentType)
			}
			if form.Description != "" {
				printStatus("Description", "%s", form.Description)
			}
			return nil
		})
	},
}

var onboardResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Discard the onboarding form and start over",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			if err := a.session.Wizard().Reset(); err != nil {
				return err
			}
			printSuccess("Onboarding reset")
			return nil
		})
	},
}

func init() {
	onboardCmd.Flags().String("name", "", "project name")
	onboardCmd.Flags().StringSlice("link", nil, "project link (repeatable)")
	onboardCmd.Flags().StringSlice("file", nil, "file path or glob to attach (repeatable)")
	onboardCmd.Flags().String("description", "", "project description")
	onboardCmd.AddCommand(onboardStatusCmd)
	onboardCmd.AddCommand(onboardResetCmd)
}

type onboardOptions struct {
	name        string
	links       []string
	files       []string
	description string
}

func (o onboardOptions) empty() bool {
	return o.name == "" && len(o.links) == 0 && len(o.files) == 0 && o.description == ""
}

// onboardFromFlags fills each remaining step from opts, then submits.
func onboardFromFlags(ctx context.Context, wiz *session.Wizard, opts onboardOptions) error {
	for {
		st := wiz.State()
		if st.Phase == session.PhaseFailed {
			printStep("Retrying submission")
			return wiz.Submit(ctx)
		}
		if st.Step == session.LastStep {
			if opts.description != "" {
				if err := wiz.SetDescription(opts.description); err != nil {
					return err
				}
			}
			printStep("Submitting %q", wiz.Form().ProjectName)
			return wiz.Submit(ctx)
		}

		switch st.Step {
		case session.StepProjectName:
			if opts.name != "" {
				if err := wiz.SetProjectName(opts.name); err != nil {
					return err
				}
			}
		case session.StepProjectLinks:
			for _, l := range opts.links {
				if _, err := wiz.AddLink(l); err != nil {
					return err
				}
			}
		case session.StepFiles:
			if len(opts.files) > 0 {
				if err := wiz.AttachPaths(ctx, opts.files...); err != nil {
					return err
				}
			}
		}
		if err := wiz.Next(); err != nil {
			return err
		}
	}
}

var errInputClosed = errors.New("input closed before onboarding finished")

// onboardInteractive prompts for each step on in, writing prompts to out.
func onboardInteractive(ctx context.Context, wiz *session.Wizard, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	prompt := func(label string) (string, error) {
		fmt.Fprintf(out, "%s: ", colorize(colorBold, label))
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return "", err
			}
			return "", errInputClosed
		}
		return strings.TrimSpace(sc.Text()), nil
	}

	for {
		st := wiz.State()
		switch {
		case st.Phase == session.PhaseDone:
			return nil
		case st.Phase == session.PhaseFailed:
			printError("Submission failed: %v", st.Err)
			answer, err := prompt("Retry? [y/N]")
			if err != nil {
				return err
			}
			if !strings.EqualFold(answer, "y") {
				return st.Err
			}
			if err := wiz.Submit(ctx); err != nil {
				continue
			}
			return nil
		}

		switch st.Step {
		case session.StepProjectName:
			name, err := prompt("Project name")
			if err != nil {
				return err
			}
			if name != "" {
				if err := wiz.SetProjectName(name); err != nil {
					return err
				}
			}

		case session.StepProjectLinks:
			for {
				link, err := prompt("Project link (empty to continue)")
				if err != nil {
					return err
				}
				if link == "" {
					break
				}
				if added, err := wiz.AddLink(link); err != nil {
					return err
				} else if !added {
					printWarning("%s is already listed", link)
				}
			}

		case session.StepFiles:
			for {
				pattern, err := prompt("File or glob (empty to continue)")
				if err != nil {
					return err
				}
				if pattern == "" {
					break
				}
				if err := wiz.AttachPaths(ctx, pattern); err != nil {
					printError("%v", err)
					continue
				}
				printSuccess("%d file(s) attached", len(wiz.Form().Attachments))
			}

		case session.StepDescription:
			desc, err := prompt("Description")
			if err != nil {
				return err
			}
			if desc != "" {
				if err := wiz.SetDescription(desc); err != nil {
					return err
				}
			}
			printStep("Submitting %q", wiz.Form().ProjectName)
			if err := wiz.Submit(ctx); err != nil && errors.Is(err, session.ErrValidation) {
				printError("%v", err)
			}
			continue
		}

		if err := wiz.Next(); err != nil {
			printError("%v", err)
		}
	}
}
