package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/focus/internal/blocklist"
)

var blockJSON bool

var blockCmd = &cobra.Command{
	Use:   "block",
	Short: "Manage blocked domains",
	Long: `Manage the domains denied during work sessions.

A blocked domain also blocks all of its subdomains. Entries may be given
as bare domains or URLs; "https://www.reddit.com/r/golang" is stored as
"reddit.com".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return blockListRun()
	},
}

var blockAddCmd = &cobra.Command{
	Use:   "add <domain>...",
	Short: "Add domains to the block list",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return blockAddRun(args)
	},
}

var blockRemoveCmd = &cobra.Command{
	Use:     "remove <domain>...",
	Aliases: []string{"rm"},
	Short:   "Remove domains from the block list",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return blockRemoveRun(args)
	},
}

var blockListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List blocked domains",
	RunE: func(cmd *cobra.Command, args []string) error {
		return blockListRun()
	},
}

func init() {
	blockListCmd.Flags().BoolVar(&blockJSON, "json", false, "Print the list as JSON")
	blockCmd.AddCommand(blockAddCmd, blockRemoveCmd, blockListCmd)
	rootCmd.AddCommand(blockCmd)
}

func blockAddRun(entries []string) error {
	if dryRun {
		for _, e := range entries {
			ui.DryRunMsg("Would block %s", e)
		}
		return nil
	}
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()
	for _, e := range entries {
		_, added, err := blocklist.AddDomain(ctx, s, e)
		if err != nil {
			return err
		}
		d, _ := blocklist.Normalize(e)
		if added {
			ui.Success("Blocked %s", d)
		} else {
			ui.Info("%s is already blocked", d)
		}
	}
	return nil
}

func blockRemoveRun(entries []string) error {
	if dryRun {
		for _, e := range entries {
			ui.DryRunMsg("Would unblock %s", e)
		}
		return nil
	}
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()
	for _, e := range entries {
		_, removed, err := blocklist.RemoveDomain(ctx, s, e)
		if err != nil {
			return err
		}
		d, _ := blocklist.Normalize(e)
		if !removed {
			return fmt.Errorf("%s is not on the block list", d)
		}
		ui.Success("Unblocked %s", d)
	}
	return nil
}

func blockListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	list, err := blocklist.Load(context.Background(), s)
	if err != nil {
		return err
	}

	if blockJSON {
		if list == nil {
			list = []string{}
		}
		return printJSON(list)
	}
	if len(list) == 0 {
		ui.Info("Block list is empty. Use 'focus block add <domain>' to add one.")
		return nil
	}

	table := ui.Table([]string{"#", "Domain"})
	for i, d := range list {
		table.Append([]string{fmt.Sprintf("%d", i+1), d})
	}
	return table.Render()
}
