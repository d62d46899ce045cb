package commands

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/vuhp/cloudthrift/pkg/providers/aws"
)

type iamPolicy struct {
	Version   string         `json:"Version"`
	Statement []iamStatement `json:"Statement"`
}

type iamStatement struct {
	Sid      string   `json:"Sid"`
	Effect   string   `json:"Effect"`
	Action   []string `json:"Action"`
	Resource string   `json:"Resource"`
}

var permissionsCmd = &cobra.Command{
	Use:   "permissions",
	Short: "Print the IAM policy a scan needs",
	Long: `Prints the least-privilege AWS IAM policy covering every built-in check.
The action list is derived from the checks themselves, so it stays current
as checks are added.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := scanPolicy()
		if err != nil {
			return err
		}
		fmt.Println(string(doc))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(permissionsCmd)
}

func scanPolicy() ([]byte, error) {
	actions := map[string]struct{}{
		// The connector resolves the account through STS before any check runs.
		"sts:GetCallerIdentity": {},
	}
	for _, c := range aws.DefaultChecks(aws.DefaultCheckConfig()) {
		for _, a := range c.Capabilities() {
			actions[a] = struct{}{}
		}
	}

	actionList := make([]string, 0, len(actions))
	for k := range actions {
		actionList = append(actionList, k)
	}
	slices.Sort(actionList)

	doc := iamPolicy{
		Version: "2012-10-17",
		Statement: []iamStatement{{
			Sid:      "CloudthriftReadOnly",
			Effect:   "Allow",
			Action:   actionList,
			Resource: "*",
		}},
	}
	return json.MarshalIndent(doc, "", "  ")
}
