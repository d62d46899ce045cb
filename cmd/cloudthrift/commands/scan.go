package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vuhp/cloudthrift/pkg/config"
	"github.com/vuhp/cloudthrift/pkg/engine"
	"github.com/vuhp/cloudthrift/pkg/events"
	"github.com/vuhp/cloudthrift/pkg/policy"
	"github.com/vuhp/cloudthrift/pkg/providers/aws"
	"github.com/vuhp/cloudthrift/pkg/telemetry"
	"github.com/vuhp/cloudthrift/pkg/version"
	"github.com/vuhp/cloudthrift/pkg/waste"
)

var (
	scanProvider   string
	scanCredential uint64
	scanProfile    string
	scanFilter     string
	scanNoCache    bool
	scanMaxAge     time.Duration
	scanEndpoint   string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan an account for waste opportunities",
	Long: `Connects to the provider, runs every detection check concurrently and
prints the priced findings. The scan and its findings land in the local
history; a fresh enough cached report is reused unless --no-cache is given.

Example:
  cloudthrift scan --provider aws --region eu-central-1
  cloudthrift scan --filter 'savings > 50.0 && category == "idle"' --output json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, err := waste.ParseProvider(scanProvider)
		if err != nil {
			return err
		}

		var filter *policy.Filter
		if scanFilter != "" {
			filter, err = policy.NewFilter(scanFilter)
			if err != nil {
				return err
			}
		}

		cache := openCache()
		if !scanNoCache {
			cached, ok, err := cache.LoadMostRecent(scanMaxAge)
			if err == nil && ok && cached.Provider == provider {
				if filter != nil {
					kept, err := filter.Apply(cached.Opportunities)
					if err != nil {
						return err
					}
					cached.Opportunities = kept
					cached.TotalSavings = waste.SumSavings(kept)
				}
				fmt.Fprintf(os.Stderr, "Using cached report from %s (rescan with --no-cache)\n",
					cached.GeneratedAt.Local().Format(time.RFC822))
				return renderReport(os.Stdout, cached, cfg.Output)
			}
		}

		shutdown, err := telemetry.Init(cmd.Context(), version.AppName, version.Current, cfg.Tracing.Endpoint, cfg.Verbose)
		if err != nil {
			logger.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown(context.Background())
		}

		rules, err := config.LoadRules(cfg.RulesFile)
		if err != nil {
			return err
		}
		aws.OverrideRates(rules.Rates.EBS, rules.Rates.CacheNodes)

		reg := engine.NewRegistry()
		reg.Register(waste.ProviderAWS, engine.ProviderSet{
			Connector:  aws.NewConnector(),
			Classifier: aws.NewClassifier(),
			Checks:     aws.DefaultChecks(checkConfig(rules.Checks)),
		})

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		v, err := openVault()
		if err != nil {
			return err
		}
		defer v.Close()

		pubs := []events.Publisher{&events.LogPublisher{Logger: logger}}
		if cfg.Slack.WebhookURL != "" {
			pubs = append(pubs, events.NewSlackPublisher(cfg.Slack.WebhookURL, cfg.Slack.Channel))
		}

		e := engine.New(
			engine.WithLogger(logger),
			engine.WithRegistry(reg),
			engine.WithStore(st),
			engine.WithVault(v),
			engine.WithCache(cache),
			engine.WithPublisher(events.NewMultiPublisher(pubs...)),
		)

		report, err := e.Execute(cmd.Context(), engine.ScanRequest{
			Provider:     provider,
			Region:       cfg.Region,
			Profile:      scanProfile,
			Endpoint:     scanEndpoint,
			CredentialID: scanCredential,
			Filter:       filter,
		})
		if err != nil {
			return err
		}
		return renderReport(os.Stdout, report, cfg.Output)
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVar(&scanProvider, "provider", "aws", "Provider to scan (aws, azure, gcp)")
	scanCmd.Flags().Uint64Var(&scanCredential, "credential", 0, "Vault credential id (default: newest bundle for the provider)")
	scanCmd.Flags().StringVar(&scanProfile, "profile", "", "Named local profile when no vault bundle is used")
	scanCmd.Flags().StringVar(&scanFilter, "filter", "", `CEL expression over findings, e.g. 'savings > 50.0'`)
	scanCmd.Flags().BoolVar(&scanNoCache, "no-cache", false, "Skip the report cache and scan fresh")
	scanCmd.Flags().DurationVar(&scanMaxAge, "max-age", 24*time.Hour, "Accept cached reports up to this age")
	scanCmd.Flags().String("slack-webhook", "", "Slack webhook URL for scan notifications")
	scanCmd.Flags().String("slack-channel", "", "Override Slack channel")

	// Hidden Flags
	scanCmd.Flags().StringVar(&scanEndpoint, "endpoint", "", "Override the provider API endpoint")
	scanCmd.Flags().MarkHidden("endpoint")

	viper.BindPFlag("slack.webhook_url", scanCmd.Flags().Lookup("slack-webhook"))
	viper.BindPFlag("slack.channel", scanCmd.Flags().Lookup("slack-channel"))
}

// checkConfig maps the rules file onto check tuning; zero fields keep the
// defaults.
func checkConfig(r config.ChecksRules) aws.CheckConfig {
	return aws.CheckConfig{
		FunctionIdleDays: r.FunctionIdleDays,
		TableIdleDays:    r.TableIdleDays,
		CacheIdleDays:    r.CacheIdleDays,
		CacheCPUPercent:  r.CacheCPUPercent,
		MultipartAgeDays: r.MultipartAgeDays,
	}.Normalize()
}
