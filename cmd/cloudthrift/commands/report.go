package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var reportMaxAge time.Duration

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the most recent cached scan report",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, ok, err := openCache().LoadMostRecent(reportMaxAge)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no cached report newer than %s; run 'cloudthrift scan'", reportMaxAge)
		}
		return renderReport(os.Stdout, report, cfg.Output)
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().DurationVar(&reportMaxAge, "max-age", 24*time.Hour, "Accept reports up to this age")
}
