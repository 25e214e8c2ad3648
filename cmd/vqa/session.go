package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Export or clear the stored session",
}

var sessionExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every stored session entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")
		if format != "json" && format != "yaml" {
			return fmt.Errorf("unknown format %q (want json or yaml)", format)
		}

		return withApp(func(a *app) error {
			entries, err := a.session.Export()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("creating output file: %w", err)
				}
				defer f.Close()
				w = f
			}

			if err := writeExport(w, format, entries); err != nil {
				return err
			}
			if output != "" {
				printSuccess("Session exported to %s", output)
			}
			return nil
		})
	},
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every stored session entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will delete the whole session. Use --confirm to proceed.")
			return nil
		}
		return withApp(func(a *app) error {
			if err := a.session.Clear(); err != nil {
				return err
			}
			printSuccess("Session cleared")
			return nil
		})
	},
}

func init() {
	sessionExportCmd.Flags().String("format", "json", "output format: json or yaml")
	sessionExportCmd.Flags().String("output", "", "output file path (default: stdout)")
	sessionClearCmd.Flags().Bool("confirm", false, "confirm deletion")
	sessionCmd.AddCommand(sessionExportCmd)
	sessionCmd.AddCommand(sessionClearCmd)
}

func writeExport(w io.Writer, format string, entries map[string]json.RawMessage) error {
	if format == "json" {
		return printJSON(w, entries)
	}

	// yaml.v3 needs decoded values; keys are emitted in sorted order.
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	doc := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range keys {
		var v any
		if err := json.Unmarshal(entries[k], &v); err != nil {
			return fmt.Errorf("decoding %s: %w", k, err)
		}
		var val yaml.Node
		if err := val.Encode(v); err != nil {
			return fmt.Errorf("encoding %s: %w", k, err)
		}
		doc.Content = append(doc.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: k}, &val)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("writing yaml: %w", err)
	}
	return enc.Close()
}
