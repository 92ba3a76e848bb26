package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/inercia/mcproxy/internal/bridge"
	"github.com/inercia/mcproxy/internal/config"
	"github.com/inercia/mcproxy/internal/hooks"
	"github.com/inercia/mcproxy/internal/observability"
)

var serveOnly string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start bridges for every configured child (or one, with --only)",
	Long: `serve reads the child list from --config, starts a Bridge
Orchestrator instance for each one, and runs until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveOnly, "only", "", "Start only the child with this id")
}

func runServe(cmd *cobra.Command, args []string) error {
	all, err := requireConfig()
	if err != nil {
		return err
	}

	toStart := all
	if serveOnly != "" {
		c, ok := config.FindByID(all, serveOnly)
		if !ok {
			return fmt.Errorf("no child with id %q in %s", serveOnly, configPath)
		}
		toStart = []config.ChildConfig{c}
	}
	if len(toStart) == 0 {
		return fmt.Errorf("no children configured in %s", configPath)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	instances := make([]*bridge.Instance, 0, len(toStart))

	shutdown := hooks.NewShutdownManager()
	shutdown.AddCleanup(func(reason string) {
		fmt.Fprintf(os.Stderr, "\nshutting down (%s)...\n", reason)
		cancel()
	})
	shutdown.AddCleanup(func(string) {
		for _, inst := range instances {
			inst.Stop()
		}
	})
	shutdown.Start()

	for _, c := range toStart {
		obs := observability.Hooks{
			OnLog: func(e observability.LogEntry) {
				fmt.Printf("[%s/%s] %s\n", e.ChildID, e.Stream, e.Text)
			},
			OnStatus: func(childID string, status observability.Status) {
				fmt.Printf("[%s] status: %s\n", childID, status)
			},
		}
		inst := bridge.New(c, obs)
		if err := inst.Start(ctx); err != nil {
			for _, running := range instances {
				running.Stop()
			}
			shutdown.Shutdown("startup failure")
			return fmt.Errorf("failed to start child %s: %w", c.ID, err)
		}
		fmt.Printf("[%s] listening on %s:%d\n", c.ID, c.Host, inst.ActualPort())
		instances = append(instances, inst)
	}

	<-ctx.Done()
	shutdown.Shutdown("context cancelled")
	return nil
}
