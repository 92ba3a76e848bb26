package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the children configured in --config",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	all, err := requireConfig()
	if err != nil {
		return err
	}
	if len(all) == 0 {
		fmt.Println("no children configured")
		return nil
	}
	for _, c := range all {
		port := "ephemeral"
		if c.Port != 0 {
			port = fmt.Sprintf("%d", c.Port)
		}
		fmt.Printf("%-20s %-30s port=%s tools=%d\n", c.ID, c.Command, port, len(c.Tools))
	}
	return nil
}
