package aws

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/vuhp/cloudthrift/pkg/providers"
	"github.com/vuhp/cloudthrift/pkg/resources"
	"github.com/vuhp/cloudthrift/pkg/waste"
)

// UnattachedVolumes finds EBS volumes in the "available" state. These are
// attached to nothing and bill at full storage rate.
type UnattachedVolumes struct{}

func NewUnattachedVolumes() *UnattachedVolumes { return &UnattachedVolumes{} }

func (*UnattachedVolumes) Name() string { return "unattached-volumes" }

func (*UnattachedVolumes) Capabilities() []string {
	return []string{"ec2:DescribeVolumes"}
}

func (*UnattachedVolumes) Run(ctx context.Context, conn providers.Connection) ([]waste.Opportunity, error) {
	ac, err := awsConn(conn)
	if err != nil {
		return nil, err
	}

	var opps []waste.Opportunity
	paginator := ec2.NewDescribeVolumesPaginator(ac.EC2, &ec2.DescribeVolumesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("status"), Values: []string{"available"}},
		},
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe volumes: %w", err)
		}

		for _, volume := range page.Volumes {
			size := aws.ToInt32(volume.Size)
			volumeType := string(volume.VolumeType)
			cost := ebsMonthlyCost(volumeType, size)

			metadata := map[string]string{
				"volume_type": volumeType,
				"size_gib":    strconv.Itoa(int(size)),
			}
			if volume.CreateTime != nil {
				metadata["created"] = volume.CreateTime.UTC().Format("2006-01-02")
			}

			opps = append(opps, waste.Opportunity{
				Provider:                waste.ProviderAWS,
				Region:                  ac.Region(),
				ResourceID:              aws.ToString(volume.VolumeId),
				ResourceName:            nameTag(volume.Tags),
				ResourceType:            resources.EC2Volume,
				Category:                waste.CategoryUnused,
				Confidence:              waste.ConfidenceHigh,
				EstimatedMonthlySavings: cost,
				CurrentMonthlyCost:      cost,
				Metadata:                metadata,
			})
		}
	}
	return opps, nil
}
