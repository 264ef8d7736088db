package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/zhubert/codexmonitor/workspace"
)

var workspacesJSON bool

var workspacesCmd = &cobra.Command{
	Use:   "workspaces",
	Short: "Inspect persisted workspaces",
}

var workspacesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted workspaces",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		storePath, err := cfg.WorkspacesPath()
		if err != nil {
			return err
		}
		entries, err := workspace.NewStore(storePath).Load()
		if err != nil {
			return err
		}
		if workspacesJSON {
			return printWorkspacesJSON(cmd.OutOrStdout(), entries)
		}
		printWorkspaces(cmd.OutOrStdout(), entries)
		return nil
	},
}

func init() {
	workspacesListCmd.Flags().BoolVar(&workspacesJSON, "json", false, "print the raw entries as JSON")
	workspacesCmd.AddCommand(workspacesListCmd)
	rootCmd.AddCommand(workspacesCmd)
}

func printWorkspacesJSON(w io.Writer, entries []workspace.Entry) error {
	if entries == nil {
		entries = []workspace.Entry{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

// printWorkspaces lists main workspaces with their worktrees indented
// beneath them.
func printWorkspaces(w io.Writer, entries []workspace.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No workspaces.")
		return
	}

	children := make(map[string][]workspace.Entry)
	var mains []workspace.Entry
	for _, e := range entries {
		if e.IsWorktree() {
			children[e.Parent()] = append(children[e.Parent()], e)
		} else {
			mains = append(mains, e)
		}
	}

	bold := color.New(color.Bold).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tPATH\tID")
	for _, m := range mains {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", bold(m.Name), m.Kind, m.Path, faint(m.ID))
		for _, c := range children[m.ID] {
			fmt.Fprintf(tw, "  └ %s\t%s\t%s\t%s\n", c.Branch(), c.Kind, c.Path, faint(c.ID))
		}
		delete(children, m.ID)
	}
	// Worktrees whose parent is gone.
	for _, orphans := range children {
		for _, c := range orphans {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.Branch(), c.Kind+" (orphaned)", c.Path, faint(c.ID))
		}
	}
	tw.Flush()
}
