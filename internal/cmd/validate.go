package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inercia/mcproxy/internal/bridge"
	"github.com/inercia/mcproxy/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate <child-id>",
	Short: "Spawn a configured child and run the tool-discovery handshake",
	Long: `validate spawns the named child outside of any running bridge,
runs the initialize/tools-list handshake against it over stdio, prints the
tools it advertises, and terminates it.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	all, err := requireConfig()
	if err != nil {
		return err
	}

	c, ok := config.FindByID(all, args[0])
	if !ok {
		return fmt.Errorf("no child with id %q in %s", args[0], configPath)
	}

	tools, err := bridge.Validate(context.Background(), c)
	if err != nil {
		return fmt.Errorf("validate %s: %w", c.ID, err)
	}

	if len(tools) == 0 {
		fmt.Printf("%s: child started and answered initialize, but advertised no tools\n", c.ID)
		return nil
	}

	fmt.Printf("%s: %d tool(s)\n", c.ID, len(tools))
	for _, t := range tools {
		fmt.Printf("  - %s: %s\n", t.Name, t.Description)
	}
	return nil
}
