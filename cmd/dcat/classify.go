package main

import (
	"fmt"
	"path/filepath"

	"github.com/franz/drone-catalog/internal/classify"
	"github.com/spf13/cobra"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <path>...",
	Short: "Classify paths by their folder names without extracting metadata",
	Long: `Run the classification rules on the given paths and print the mission,
confidence, method and bay of each, followed by statistics.

Only path-based rules apply: no video is opened, so metadata tag rules
never match. Useful for checking a rules file against a folder layout.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)

	classifyCmd.Flags().String("rules", "", "classification rules YAML")
}

func runClassify(cmd *cobra.Command, args []string) error {
	if err := bindFlags(cmd); err != nil {
		return err
	}

	cfg, err := classifyConfig()
	if err != nil {
		return err
	}
	classifier, err := classify.New(cfg)
	if err != nil {
		return err
	}

	assignments := make([]classify.Assignment, 0, len(args))
	for _, p := range args {
		a := classifier.Classify(nil, filepath.ToSlash(p))
		assignments = append(assignments, a)

		line := fmt.Sprintf("%-8s %.2f  %-16s", a.Mission, a.Confidence, a.Method)
		if a.HasBay() {
			line += fmt.Sprintf(" bay=%-6s", a.Bay)
		} else {
			line += "           "
		}
		fmt.Printf("%s %s\n", line, p)
	}

	stats := classify.ComputeStats(assignments)
	fmt.Println()
	fmt.Printf("Total: %d\n", stats.Total)
	for _, m := range classify.Missions {
		fmt.Printf("  %-8s %d\n", m, stats.ByMission[m])
	}
	fmt.Printf("Classified: %.1f%%\n", stats.ClassifiedShare()*100)
	fmt.Printf("High confidence: %.1f%%\n", stats.HighConfidenceShare()*100)
	fmt.Printf("Average confidence: %.2f\n", stats.AvgConfidence)
	return nil
}
