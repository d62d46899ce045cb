package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/vuhp/cloudthrift/pkg/config"
	"github.com/vuhp/cloudthrift/pkg/engine"
	"github.com/vuhp/cloudthrift/pkg/storage"
	"github.com/vuhp/cloudthrift/pkg/store"
	"github.com/vuhp/cloudthrift/pkg/vault"
	"github.com/vuhp/cloudthrift/pkg/version"
)

var (
	cfgFile string
	cfg     = config.Default()
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "cloudthrift",
	Short: "Find wasted cloud spend",
	Long: `Cloudthrift scans a cloud account for resources that cost money without
earning their keep: stopped instances, unattached volumes, idle databases,
functions nobody invokes. Findings are priced per month and kept in a local
scan history.`,
	Version: version.Current,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := viper.Unmarshal(&cfg); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		if cfg.DataDir == "" {
			cfg.DataDir = config.DefaultDataDir()
		}
		logger = buildLogger()
		slog.SetDefault(logger)
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Persistent Flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ~/.cloudthrift.yaml)")
	rootCmd.PersistentFlags().String("region", config.DefaultRegion, "Cloud region to scan")
	rootCmd.PersistentFlags().String("data-dir", "", "State directory (default ~/.cloudthrift)")
	rootCmd.PersistentFlags().String("rules", "", "YAML rules file overriding check tuning and price tables")
	rootCmd.PersistentFlags().StringP("output", "o", config.DefaultOutput, "Output format: table or json")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit logs as JSON")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	viper.BindPFlag("region", rootCmd.PersistentFlags().Lookup("region"))
	viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	viper.BindPFlag("rules_file", rootCmd.PersistentFlags().Lookup("rules"))
	viper.BindPFlag("json_logs", rootCmd.PersistentFlags().Lookup("json-logs"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		renderHelp(cmd)
	})
	rootCmd.SetVersionTemplate(fmt.Sprintf("%s {{.Version}} [%s]\n", version.AppName, version.License))
}

func renderHelp(cmd *cobra.Command) {
	flagStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA"))

	fmt.Println(titleStyle.Render(fmt.Sprintf("CLOUDTHRIFT %s", version.Current)))
	fmt.Println(cmd.Short)
	fmt.Println("")

	fmt.Println(titleStyle.Render("USAGE"))
	fmt.Printf("  %s\n\n", cmd.UseLine())

	if cmd.HasAvailableSubCommands() {
		fmt.Println(titleStyle.Render("COMMANDS"))
		for _, c := range cmd.Commands() {
			if c.IsAvailableCommand() {
				fmt.Printf("  %-12s %s\n", c.Name(), c.Short)
			}
		}
		fmt.Println("")
	}

	if !cmd.HasParent() {
		fmt.Println(titleStyle.Render("EXAMPLES"))
		fmt.Println("  cloudthrift scan --region eu-west-1        # Scan and print a waste report")
		fmt.Println("  cloudthrift scan --filter 'savings > 50'   # Only findings worth chasing")
		fmt.Println("  cloudthrift stats                          # Totals across scan history")
		fmt.Println("")
	}

	fmt.Println(titleStyle.Render("FLAGS"))
	printFlags(cmd.Flags(), flagStyle)
	if cmd.HasParent() && cmd.InheritedFlags().HasAvailableFlags() {
		fmt.Println("")
		fmt.Println(titleStyle.Render("GLOBAL FLAGS"))
		printFlags(cmd.InheritedFlags(), flagStyle)
	}
	fmt.Println("")
}

func printFlags(fs *pflag.FlagSet, style lipgloss.Style) {
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		name := "--" + f.Name
		if f.Shorthand != "" {
			name = "-" + f.Shorthand + ", " + name
		}
		output := fmt.Sprintf("  %-22s %s", name, f.Usage)
		if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" {
			output += fmt.Sprintf(" (default %s)", f.DefValue)
		}
		fmt.Println(style.Render(output))
	})
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.SetConfigFile(filepath.Join(home, ".cloudthrift.yaml"))
			viper.SetConfigType("yaml")
		}
	}
	viper.SetEnvPrefix("CLOUDTHRIFT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
	viper.ReadInConfig()
}

// buildLogger keeps stdout clean for command output; logs go to stderr.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: engine.RedactSensitive,
	}
	var handler slog.Handler
	if cfg.JSONLogs {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func openStore() (*store.Store, error) {
	st, err := store.Open(filepath.Join(cfg.DataDir, "store"))
	if err != nil {
		return nil, fmt.Errorf("opening scan store: %w", err)
	}
	return st, nil
}

func openVault() (*vault.Vault, error) {
	v, err := vault.Open(filepath.Join(cfg.DataDir, "vault"))
	if err != nil {
		return nil, fmt.Errorf("opening credential vault: %w", err)
	}
	return v, nil
}

func openCache() *storage.ReportCache {
	return storage.NewReportCache(filepath.Join(cfg.DataDir, "reports"))
}
