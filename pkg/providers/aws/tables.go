package aws

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/vuhp/cloudthrift/pkg/providers"
	"github.com/vuhp/cloudthrift/pkg/resources"
	"github.com/vuhp/cloudthrift/pkg/waste"
)

// IdleProvisionedTables finds DynamoDB tables that pay for provisioned
// capacity nobody consumes. On-demand tables have no idle cost and are
// skipped.
type IdleProvisionedTables struct {
	IdleDays int
}

func NewIdleProvisionedTables(idleDays int) *IdleProvisionedTables {
	return &IdleProvisionedTables{IdleDays: idleDays}
}

func (*IdleProvisionedTables) Name() string { return "idle-provisioned-tables" }

func (*IdleProvisionedTables) Capabilities() []string {
	return []string{"dynamodb:ListTables", "dynamodb:DescribeTable", "cloudwatch:GetMetricData"}
}

func (c *IdleProvisionedTables) Run(ctx context.Context, conn providers.Connection) ([]waste.Opportunity, error) {
	ac, err := awsConn(conn)
	if err != nil {
		return nil, err
	}

	var opps []waste.Opportunity
	paginator := dynamodb.NewListTablesPaginator(ac.DynamoDB, &dynamodb.ListTablesInput{})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list tables: %w", err)
		}

		for _, tableName := range page.TableNames {
			desc, err := ac.DynamoDB.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(tableName)})
			if err != nil {
				return nil, fmt.Errorf("failed to describe table %s: %w", tableName, err)
			}
			table := desc.Table

			if !isProvisioned(table) {
				continue
			}

			readUnits := aws.ToInt64(table.ProvisionedThroughput.ReadCapacityUnits)
			writeUnits := aws.ToInt64(table.ProvisionedThroughput.WriteCapacityUnits)
			if readUnits == 0 && writeUnits == 0 {
				continue
			}

			consumed, err := c.consumedCapacity(ctx, ac, tableName)
			if err != nil {
				return nil, fmt.Errorf("failed to fetch consumption for %s: %w", tableName, err)
			}
			if consumed > 0 {
				continue
			}

			cost := dynamoProvisionedMonthlyCost(readUnits, writeUnits)
			opps = append(opps, waste.Opportunity{
				Provider:                waste.ProviderAWS,
				Region:                  ac.Region(),
				ResourceID:              tableName,
				ResourceName:            tableName,
				ResourceType:            resources.DynamoDBTable,
				Category:                waste.CategoryIdle,
				Confidence:              waste.ConfidenceHigh,
				EstimatedMonthlySavings: cost,
				CurrentMonthlyCost:      cost,
				Metadata: map[string]string{
					"read_units":  strconv.FormatInt(readUnits, 10),
					"write_units": strconv.FormatInt(writeUnits, 10),
				},
			})
		}
	}
	return opps, nil
}

// isProvisioned reports whether the table bills provisioned capacity.
// Legacy tables predate BillingModeSummary and default to provisioned.
func isProvisioned(table *ddbtypes.TableDescription) bool {
	if table.BillingModeSummary != nil {
		return table.BillingModeSummary.BillingMode == ddbtypes.BillingModeProvisioned
	}
	return table.ProvisionedThroughput != nil
}

// consumedCapacity sums read and write consumption over the window.
func (c *IdleProvisionedTables) consumedCapacity(ctx context.Context, ac *Connection, tableName string) (float64, error) {
	endTime := time.Now()
	startTime := endTime.Add(-time.Duration(c.IdleDays) * 24 * time.Hour)

	out, err := ac.CloudWatch.GetMetricData(ctx, &cloudwatch.GetMetricDataInput{
		MetricDataQueries: []cwtypes.MetricDataQuery{
			{
				Id: aws.String("m_consumed_read"),
				MetricStat: &cwtypes.MetricStat{
					Metric: &cwtypes.Metric{
						Namespace:  aws.String("AWS/DynamoDB"),
						MetricName: aws.String("ConsumedReadCapacityUnits"),
						Dimensions: []cwtypes.Dimension{{Name: aws.String("TableName"), Value: aws.String(tableName)}},
					},
					Period: aws.Int32(86400),
					Stat:   aws.String("Sum"),
				},
			},
			{
				Id: aws.String("m_consumed_write"),
				MetricStat: &cwtypes.MetricStat{
					Metric: &cwtypes.Metric{
						Namespace:  aws.String("AWS/DynamoDB"),
						MetricName: aws.String("ConsumedWriteCapacityUnits"),
						Dimensions: []cwtypes.Dimension{{Name: aws.String("TableName"), Value: aws.String(tableName)}},
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
