package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	v1 "github.com/sparkq/sparkq/pkg/api/v1"
)

func newConfigCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and change the running daemon's configuration",
	}
	cmd.AddCommand(
		newConfigShowCommand(opts),
		newConfigSetCommand(opts),
		newConfigUnsetCommand(opts),
		newConfigValidateCommand(opts),
	)
	return cmd
}

func newConfigShowCommand(opts *rootOptions) *cobra.Command {
	var asYAML bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration with each value's source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.newAPIClient()
			if err != nil {
				return err
			}
			resolved, err := c.Config(cmd.Context())
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(resolved)
			}
			if asYAML {
				out, err := yaml.Marshal(resolved)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), string(out))
				return nil
			}
			return printResolvedConfig(cmd, resolved)
		},
	}

	cmd.Flags().BoolVar(&asYAML, "yaml", false, "print as yaml instead of a table")
	return cmd
}

func newConfigSetCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <namespace> <key> <value>",
		Short: "Write a value into the database config layer",
		Long:  "Set stores a live override that wins over the config file and built-in defaults. The value is parsed as JSON; anything that does not parse is stored as a string.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.newAPIClient()
			if err != nil {
				return err
			}
			resolved, err := c.PutConfig(cmd.Context(), args[0], args[1], parseJSONValue(args[2]))
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(resolved)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s/%s\n", args[0], args[1])
			return nil
		},
	}
}

func newConfigUnsetCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unset <namespace> <key>",
		Short: "Remove a database override, reverting to file or defaults",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.newAPIClient()
			if err != nil {
				return err
			}
			resolved, err := c.DeleteConfig(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(resolved)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Unset %s/%s\n", args[0], args[1])
			return nil
		},
	}
}

func newConfigValidateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <namespace> <key> <value>",
		Short: "Check a config value without persisting it",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.newAPIClient()
			if err != nil {
				return err
			}
			verdict, err := c.ValidateConfig(cmd.Context(), args[0], args[1], parseJSONValue(args[2]))
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(verdict)
			}
			if verdict.Valid {
				fmt.Fprintln(cmd.OutOrStdout(), "Valid")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Invalid:")
			for _, problem := range verdict.Errors {
				fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", problem)
			}
			return nil
		},
	}
}

func printResolvedConfig(cmd *cobra.Command, resolved v1.ResolvedConfig) error {
	namespaces := make([]string, 0, len(resolved))
	for ns := range resolved {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAMESPACE\tKEY\tSOURCE\tVALUE")
	for _, ns := range namespaces {
		keys := make([]string, 0, len(resolved[ns]))
		for key := range resolved[ns] {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			entry := resolved[ns][key]
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ns, key, entry.Source, compactValue(entry.Value))
		}
	}
	return w.Flush()
}

// compactValue renders a config value on one table row.
func compactValue(v interface{}) string {
	s := fmt.Sprintf("%v", v)
	if len(s) > 80 {
		return s[:77] + "..."
	}
	return s
}
