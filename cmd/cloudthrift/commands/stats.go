package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate totals across the scan history",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := st.GetStats()
		if err != nil {
			return err
		}
		if cfg.Output == "json" {
			return renderJSON(os.Stdout, stats)
		}
		renderStats(os.Stdout, stats)
		return nil
	},
}

var trendDays int

var trendCmd = &cobra.Command{
	Use:   "trend",
	Short: "Show per-day savings over the trailing window",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		points, err := st.GetTrendData(trendDays)
		if err != nil {
			return err
		}
		if cfg.Output == "json" {
			return renderJSON(os.Stdout, points)
		}
		renderTrend(os.Stdout, points)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(trendCmd)

	trendCmd.Flags().IntVar(&trendDays, "days", 30, "Window size in days")
}
