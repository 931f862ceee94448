package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/reza/hivemind/pkg/swarm"
)

var (
	runTier      string
	runModel     string
	runContext   string
	runSynthesis string
)

var runCmd = &cobra.Command{
	Use:   "run <task>",
	Short: "Run the agent swarm on one task",
	Long: `Run every agent of the configured tier on the task in parallel, then
stream the synthesized answer to stdout. Progress goes to stderr.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runTier, "tier", "", "agent tier (minimum, medium, full)")
	runCmd.Flags().StringVar(&runModel, "model", "", "worker model override")
	runCmd.Flags().StringVar(&runContext, "context", "", "file whose contents are attached as task context")
	runCmd.Flags().StringVar(&runSynthesis, "synthesis", "", "synthesis backend (hosted, local)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	task := strings.Join(args, " ")

	rt, err := buildRuntime(runTier, runModel, runSynthesis)
	if err != nil {
		return err
	}
	defer rt.Close()

	taskContext := ""
	if runContext != "" {
		data, err := os.ReadFile(runContext)
		if err != nil {
			return fmt.Errorf("failed to read context file: %w", err)
		}
		taskContext = string(data)
	}

	stop := cancelOnInterrupt(rt.sw)
	defer stop()

	result, err := rt.sw.Run(context.Background(), task, taskContext, swarm.Callbacks{
		OnAgentStatus: func(role, status string) {
			fmt.Fprintf(os.Stderr, "[%s] %s\n", role, status)
		},
		OnAgentDone: func(role, output string) {
			fmt.Fprintf(os.Stderr, "[%s] finished (%d chars)\n", role, len(output))
		},
		OnToken: func(token string) {
			fmt.Print(token)
		},
	})
	if err != nil {
		if errors.Is(err, swarm.ErrCancelled) {
			fmt.Fprintf(os.Stderr, "\nrun cancelled; %d agent outcomes collected\n", len(result.Outcomes))
			return nil
		}
		// Synthesis failure still leaves the per-agent outcomes usable.
		if result != nil && len(result.Outcomes) > 0 {
			fmt.Fprintf(os.Stderr, "\nsynthesis failed: %v\nper-agent outputs follow:\n\n", err)
			for _, o := range result.Outcomes {
				fmt.Printf("---- %s ----\n%s\n\n", o.Role, o.Text())
			}
			return nil
		}
		return err
	}

	fmt.Println()
	fmt.Fprintf(os.Stderr, "done in %s (run %s)\n", result.Elapsed.Round(100*time.Millisecond), result.RunID)
	return nil
}
