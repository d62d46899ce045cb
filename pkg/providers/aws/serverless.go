package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/lambda"

	"github.com/vuhp/cloudthrift/pkg/providers"
	"github.com/vuhp/cloudthrift/pkg/resources"
	"github.com/vuhp/cloudthrift/pkg/waste"
)

// lambdaTimeFormat parses LastModified strings like "2024-01-15T09:30:00.000+0000".
const lambdaTimeFormat = "2006-01-02T15:04:05.000-0700"

// IdleFunctions finds Lambda functions with zero invocations over the
// window. The direct cost is small; the finding flags code rot and dead
// event wiring.
type IdleFunctions struct {
	IdleDays int
}

func NewIdleFunctions(idleDays int) *IdleFunctions {
	return &IdleFunctions{IdleDays: idleDays}
}

func (*IdleFunctions) Name() string { return "idle-functions" }

func (*IdleFunctions) Capabilities() []string {
	return []string{"lambda:ListFunctions", "cloudwatch:GetMetricData"}
}

func (c *IdleFunctions) Run(ctx context.Context, conn providers.Connection) ([]waste.Opportunity, error) {
	ac, err := awsConn(conn)
	if err != nil {
		return nil, err
	}

	endTime := time.Now()
	startTime := endTime.Add(-time.Duration(c.IdleDays) * 24 * time.Hour)

	var opps []waste.Opportunity
	paginator := lambda.NewListFunctionsPaginator(ac.Lambda, &lambda.ListFunctionsInput{})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list functions: %w", err)
		}

		for _, fn := range page.Functions {
			name := aws.ToString(fn.FunctionName)

			// Functions deployed mid-window have not had a fair chance yet.
			if t, perr := time.Parse(lambdaTimeFormat, aws.ToString(fn.LastModified)); perr == nil && t.After(startTime) {
				continue
			}

			invocations, err := c.sumInvocations(ctx, ac, name, startTime, endTime)
			if err != nil {
				return nil, fmt.Errorf("failed to fetch invocations for %s: %w", name, err)
			}
			if invocations > 0 {
				continue
			}

			opps = append(opps, waste.Opportunity{
				Provider:                waste.ProviderAWS,
				Region:                  ac.Region(),
				ResourceID:              name,
				ResourceName:            name,
				ResourceType:            resources.LambdaFunction,
				Category:                waste.CategoryUnused,
				Confidence:              waste.ConfidenceLow,
				EstimatedMonthlySavings: idleFunctionRate,
				CurrentMonthlyCost:      idleFunctionRate,
				Metadata: map[string]string{
					"runtime":       string(fn.Runtime),
					"last_modified": aws.ToString(fn.LastModified),
				},
			})
		}
	}
	return opps, nil
}

func (c *IdleFunctions) sumInvocations(ctx context.Context, ac *Connection, funcName string, startTime, endTime time.Time) (float64, error) {
	out, err := ac.CloudWatch.GetMetricData(ctx, &cloudwatch.GetMetricDataInput{
		MetricDataQueries: []cwtypes.MetricDataQuery{
			{
				Id: aws.String("m_invocations"),
				MetricStat: &cwtypes.MetricStat{
					Metric: &cwtypes.Metric{
						Namespace:  aws.String("AWS/Lambda"),
						MetricName: aws.String("Invocations"),
						Dimensions: []cwtypes.Dimension{{Name: aws.String("FunctionName"), Value: aws.String(funcName)}},
					},
					Period: aws.Int32(86400),
					Stat:   aws.String("Sum"),
				},
			},
		},
		StartTime: &startTime,
		EndTime:   &endTime,
	})
	if err != nil {
		return 0, err
	}

	total := 0.0
	for _, res := range out.MetricDataResults {
		for _, v := range res.Values {
			total += v
		}
	}
	return total, nil
}
