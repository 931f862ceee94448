package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/reza/hivemind/pkg/swarm"
)

var (
	researchRounds   int
	researchOutput   string
	researchSchedule string
)

var researchCmd = &cobra.Command{
	Use:   "research <topic>",
	Short: "Run the autonomous research loop on a topic",
	Long: `Run multi-round research: each round a collector agent gathers raw
material into the output directory, a catalog call summarizes it, and the
first NEXT: line of the catalog becomes the next round's subtopic. With
--schedule the loop runs unattended on a cron expression.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResearch,
}

func init() {
	researchCmd.Flags().IntVar(&researchRounds, "rounds", 0, "number of research rounds")
	researchCmd.Flags().StringVar(&researchOutput, "output", "", "artifact output directory")
	researchCmd.Flags().StringVar(&researchSchedule, "schedule", "", "cron expression for unattended repeated runs")
	rootCmd.AddCommand(researchCmd)
}

func runResearch(cmd *cobra.Command, args []string) error {
	topic := strings.Join(args, " ")

	rt, err := buildRuntime("", "", "")
	if err != nil {
		return err
	}
	defer rt.Close()

	params := swarm.ResearchParams{
		Topic:     topic,
		OutputDir: rt.cfg.Research.OutputDir,
		MaxRounds: rt.cfg.Research.MaxRounds,
	}
	if researchRounds > 0 {
		params.MaxRounds = researchRounds
	}
	if researchOutput != "" {
		params.OutputDir = researchOutput
	}

	stop := cancelOnInterrupt(rt.sw)
	defer stop()

	if researchSchedule != "" {
		return scheduleResearch(rt, params, researchSchedule)
	}
	return researchOnce(rt, params)
}

func researchOnce(rt *runtime, params swarm.ResearchParams) error {
	result, err := rt.sw.RunResearch(context.Background(), params, researchCallbacks())
	if err != nil && !errors.Is(err, swarm.ErrCancelled) {
		return err
	}

	fmt.Fprintf(os.Stderr, "\n%d rounds, %d artifacts in %s:\n", result.Rounds, len(result.Files), params.OutputDir)
	for _, file := range result.Files {
		fmt.Fprintf(os.Stderr, "  %s\n", file)
	}
	if result.Cancelled {
		fmt.Fprintln(os.Stderr, "research cancelled; partial artifacts kept")
	}
	return nil
}

// scheduleResearch blocks forever, running the loop on the given cron
// expression. Each firing is one full research run; overlapping firings are
// skipped while a run is active.
func scheduleResearch(rt *runtime, params swarm.ResearchParams, spec string) error {
	running := make(chan struct{}, 1)

	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		select {
		case running <- struct{}{}:
		default:
			fmt.Fprintln(os.Stderr, "previous research run still active, skipping this firing")
			return
		}
		defer func() { <-running }()

		fmt.Fprintf(os.Stderr, "scheduled research run starting: %s\n", params.Topic)
		if err := researchOnce(rt, params); err != nil {
			fmt.Fprintf(os.Stderr, "scheduled research run failed: %v\n", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}

	fmt.Fprintf(os.Stderr, "research scheduled (%s); press Ctrl-C to stop\n", spec)
	c.Run()
	return nil
}

func researchCallbacks() swarm.Callbacks {
	return swarm.Callbacks{
		OnRound: func(round, maxRounds int, subtopic string) {
			fmt.Fprintf(os.Stderr, "\n=== round %d/%d: %s ===\n", round, maxRounds, subtopic)
		},
		OnAgentStatus: func(role, status string) {
			fmt.Fprintf(os.Stderr, "[%s] %s\n", role, status)
		},
		OnToken: func(token string) {
			fmt.Print(token)
		},
	}
}
