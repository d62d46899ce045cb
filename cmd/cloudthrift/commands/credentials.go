package commands

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vuhp/cloudthrift/pkg/waste"
)

var credentialsCmd = &cobra.Command{
	Use:     "credentials",
	Aliases: []string{"creds"},
	Short:   "Manage stored provider credentials",
	Long: `Credential bundles are encrypted at rest with a machine-local master key
and are only ever decrypted for the duration of a scan. Values are never
printed or logged.`,
}

var (
	credAddProvider string
	credAddName     string
	credAddFromEnv  bool
	credAddPairs    []string
)

var credentialsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Encrypt and store a credential bundle",
	Long: `Stores a named secret bundle for a provider.

Example:
  cloudthrift credentials add --provider aws --name prod --from-env
  cloudthrift credentials add --provider aws --name ci -k access_key_id=AKIA... -k secret_access_key=...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, err := waste.ParseProvider(credAddProvider)
		if err != nil {
			return err
		}

		secrets := make(map[string]string)
		if credAddFromEnv {
			envKeys, err := providerEnvKeys(provider)
			if err != nil {
				return err
			}
			for _, key := range envKeys {
				if val := os.Getenv(key); val != "" {
					secrets[bundleKey(key)] = val
				}
			}
			if len(secrets) == 0 {
				return fmt.Errorf("--from-env found none of %s set", strings.Join(envKeys, ", "))
			}
		}
		for _, pair := range credAddPairs {
			k, v, ok := strings.Cut(pair, "=")
			if !ok || k == "" || v == "" {
				return fmt.Errorf("invalid -k %q (expected key=value)", pair)
			}
			secrets[k] = v
		}
		if len(secrets) == 0 {
			return errors.New("no secrets given: use --from-env or -k key=value")
		}

		v, err := openVault()
		if err != nil {
			return err
		}
		defer v.Close()

		id, err := v.Save(provider, credAddName, secrets)
		if err != nil {
			return err
		}

		// Echo key names only; values stay inside the vault.
		keys := make([]string, 0, len(secrets))
		for k := range secrets {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		fmt.Printf("Stored credential #%d (%s, %q) with keys: %s\n",
			id, provider, credAddName, strings.Join(keys, ", "))
		return nil
	},
}

var credentialsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored credential bundles (metadata only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVault()
		if err != nil {
			return err
		}
		defer v.Close()

		metas, err := v.List()
		if err != nil {
			return err
		}
		renderCredentials(os.Stdout, metas)
		return nil
	},
}

var credentialsRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a stored credential bundle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid credential id %q", args[0])
		}

		v, err := openVault()
		if err != nil {
			return err
		}
		defer v.Close()

		if err := v.Delete(id); err != nil {
			return err
		}
		fmt.Printf("Deleted credential #%d\n", id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(credentialsCmd)
	credentialsCmd.AddCommand(credentialsAddCmd)
	credentialsCmd.AddCommand(credentialsListCmd)
	credentialsCmd.AddCommand(credentialsRmCmd)

	credentialsAddCmd.Flags().StringVar(&credAddProvider, "provider", "aws", "Provider the bundle belongs to")
	credentialsAddCmd.Flags().StringVar(&credAddName, "name", "default", "Bundle label, e.g. prod or ci")
	credentialsAddCmd.Flags().BoolVar(&credAddFromEnv, "from-env", false, "Capture the provider's standard environment variables")
	credentialsAddCmd.Flags().StringArrayVarP(&credAddPairs, "set", "k", nil, "Secret as key=value (repeatable)")
}

// providerEnvKeys names the environment variables --from-env captures.
func providerEnvKeys(p waste.Provider) ([]string, error) {
	switch p {
	case waste.ProviderAWS:
		return []string{"AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "AWS_SESSION_TOKEN"}, nil
	default:
		return nil, fmt.Errorf("--from-env is not supported for provider %s", p)
	}
}

// bundleKey converts AWS_ACCESS_KEY_ID style env names to bundle keys like
// access_key_id.
func bundleKey(envName string) string {
	return strings.ToLower(strings.TrimPrefix(envName, "AWS_"))
}
