package aws

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"

	"github.com/vuhp/cloudthrift/pkg/providers"
	"github.com/vuhp/cloudthrift/pkg/resources"
	"github.com/vuhp/cloudthrift/pkg/waste"
)

// StoppedDatabases finds RDS instances in the "stopped" state. Compute is
// free while stopped, but allocated storage and snapshots keep billing, and
// RDS restarts the instance after seven days anyway.
type StoppedDatabases struct{}

func NewStoppedDatabases() *StoppedDatabases { return &StoppedDatabases{} }

func (*StoppedDatabases) Name() string { return "stopped-databases" }

func (*StoppedDatabases) Capabilities() []string {
	return []string{"rds:DescribeDBInstances"}
}

func (*StoppedDatabases) Run(ctx context.Context, conn providers.Connection) ([]waste.Opportunity, error) {
	ac, err := awsConn(conn)
	if err != nil {
		return nil, err
	}

	var opps []waste.Opportunity
	paginator := rds.NewDescribeDBInstancesPaginator(ac.RDS, &rds.DescribeDBInstancesInput{})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe db instances: %w", err)
		}

		for _, db := range page.DBInstances {
			if aws.ToString(db.DBInstanceStatus) != "stopped" {
				continue
			}

			storage := aws.ToInt32(db.AllocatedStorage)
			cost := float64(storage) * rdsStorageRate

			opps = append(opps, waste.Opportunity{
				Provider:                waste.ProviderAWS,
				Region:                  ac.Region(),
				ResourceID:              aws.ToString(db.DBInstanceIdentifier),
				ResourceName:            aws.ToString(db.DBName),
				ResourceType:            resources.RDSInstance,
				Category:                waste.CategoryIdle,
				Confidence:              waste.ConfidenceHigh,
				EstimatedMonthlySavings: cost,
				CurrentMonthlyCost:      cost,
				Metadata: map[string]string{
					"engine":         aws.ToString(db.Engine),
					"instance_class": aws.ToString(db.DBInstanceClass),
					"storage_gib":    strconv.Itoa(int(storage)),
				},
			})
		}
	}
	return opps, nil
}
