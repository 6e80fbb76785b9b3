package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hello3x3/SwarmRescueUI/internal/sim"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "swarm-sim",
		Short: "Headless swarm reconnection simulation",
		Long: `swarm-sim runs the swarm reconnection simulation without the dashboard:
initialize a swarm, destroy part of it, and step the chosen reconnection
algorithm to completion, optionally exporting the per-step trajectory as CSV.`,
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newModesCmd(),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	var (
		configFile string
		algorithm  int
		destroy    int
		steps      int
		seed       int64
		csvPath    string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulation to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := sim.LoadConfig(configFile)
			if err != nil {
				return err
			}
			if seed != 0 {
				cfg.Field.Seed = seed
			}
			if algorithm < 0 {
				algorithm = cfg.Swarm.DefaultAlgorithm
			}
			if destroy < 0 {
				destroy = cfg.Swarm.DefaultDestroyCount
			}
			if steps > 0 {
				cfg.Run.MaxSteps = steps
			}

			mode := sim.AlgorithmMode(algorithm)
			if !mode.Valid() {
				return fmt.Errorf("algorithm must be 0..5, got %d", algorithm)
			}

			history := sim.NewHistory()
			ctrl := sim.NewController(cfg, sim.BuiltinCollaborators(cfg))
			ctrl.SetHistory(history)

			if err := ctrl.Initialize(mode, destroy); err != nil {
				return err
			}
			for {
				outcome, err := ctrl.Step()
				if err != nil {
					return err
				}
				if outcome == sim.StepFinished {
					break
				}
				snap := ctrl.Snapshot()
				if snap.Connected && snap.StepCount > 1 {
					// Reconnected; nothing left to repair.
					break
				}
			}

			printSummary(cmd, mode, ctrl.Snapshot())

			if csvPath != "" {
				if err := history.WriteCSVFile(csvPath); err != nil {
					return err
				}
				cmd.Printf("history written to %s\n", csvPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "YAML simulation config, layered over built-in defaults")
	cmd.Flags().IntVar(&algorithm, "algorithm", -1, "algorithm mode 0..5 (default from config)")
	cmd.Flags().IntVar(&destroy, "destroy", -1, "agents destroyed on the first step (default from config)")
	cmd.Flags().IntVar(&steps, "steps", 0, "override the step limit")
	cmd.Flags().Int64Var(&seed, "seed", 0, "RNG seed (0 seeds from the clock)")
	cmd.Flags().StringVar(&csvPath, "csv", "", "write the per-step history to this CSV file")
	return cmd
}

func printSummary(cmd *cobra.Command, mode sim.AlgorithmMode, snap *sim.Snapshot) {
	status := fmt.Sprintf("disconnected (%d clusters)", snap.Clusters)
	if snap.Connected {
		status = "connected"
	}
	cmd.Printf("Simulation finished (algorithm=%s, steps=%d)\n", mode, snap.StepCount)
	cmd.Printf("  remaining: %d\n", len(snap.Remain))
	cmd.Printf("  destroyed: %d\n", len(snap.Destroyed))
	cmd.Printf("  status:    %s\n", status)
}

func newModesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "modes",
		Short: "List the available algorithm modes",
		Run: func(cmd *cobra.Command, args []string) {
			for mode := sim.ModeCSDS; mode <= sim.ModeCRMGC; mode++ {
				cmd.Printf("%d\t%s\n", int(mode), mode)
			}
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("swarm-sim " + version)
		},
	}
}
