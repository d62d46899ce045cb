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

// StoppedInstances finds EC2 instances that are stopped but still paying for
// attached EBS storage.
type StoppedInstances struct{}

func NewStoppedInstances() *StoppedInstances { return &StoppedInstances{} }

func (*StoppedInstances) Name() string { return "stopped-instances" }

func (*StoppedInstances) Capabilities() []string {
	return []string{"ec2:DescribeInstances", "ec2:DescribeVolumes"}
}

func (c *StoppedInstances) Run(ctx context.Context, conn providers.Connection) ([]waste.Opportunity, error) {
	ac, err := awsConn(conn)
	if err != nil {
		return nil, err
	}

	var opps []waste.Opportunity
	paginator := ec2.NewDescribeInstancesPaginator(ac.EC2, &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("instance-state-name"), Values: []string{"stopped"}},
		},
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe instances: %w", err)
		}

		for _, reservation := range page.Reservations {
			for _, instance := range reservation.Instances {
				id := aws.ToString(instance.InstanceId)

				cost, volumes, err := c.attachedStorageCost(ctx, ac, id)
				if err != nil {
					return nil, err
				}
				if cost == 0 {
					// Instance-store only; nothing billed while stopped.
					continue
				}

				opps = append(opps, waste.Opportunity{
					Provider:                waste.ProviderAWS,
					Region:                  ac.Region(),
					ResourceID:              id,
					ResourceName:            nameTag(instance.Tags),
					ResourceType:            resources.EC2Instance,
					Category:                waste.CategoryIdle,
					Confidence:              waste.ConfidenceMedium,
					EstimatedMonthlySavings: cost,
					CurrentMonthlyCost:      cost,
					Metadata: map[string]string{
						"instance_type": string(instance.InstanceType),
						"volumes":       strconv.Itoa(volumes),
					},
				})
			}
		}
	}
	return opps, nil
}

// attachedStorageCost sums the monthly carry cost of EBS volumes still
// attached to the instance. One page is enough; an instance tops out at a
// few dozen attachments.
func (c *StoppedInstances) attachedStorageCost(ctx context.Context, ac *Connection, instanceID string) (float64, int, error) {
	out, err := ac.EC2.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("attachment.instance-id"), Values: []string{instanceID}},
		},
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to describe volumes for %s: %w", instanceID, err)
	}

	var cost float64
	for _, volume := range out.Volumes {
		cost += ebsMonthlyCost(string(volume.VolumeType), aws.ToInt32(volume.Size))
	}
	return cost, len(out.Volumes), nil
}

// UnassociatedIPs finds Elastic IPs that are allocated but not associated
// with anything. AWS bills these by the hour.
type UnassociatedIPs struct{}

func NewUnassociatedIPs() *UnassociatedIPs { return &UnassociatedIPs{} }

func (*UnassociatedIPs) Name() string { return "unassociated-ips" }

func (*UnassociatedIPs) Capabilities() []string {
	return []string{"ec2:DescribeAddresses"}
}

func (*UnassociatedIPs) Run(ctx context.Context, conn providers.Connection) ([]waste.Opportunity, error) {
	ac, err := awsConn(conn)
	if err != nil {
		return nil, err
	}

	result, err := ac.EC2.DescribeAddresses(ctx, &ec2.DescribeAddressesInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to describe addresses: %w", err)
	}

	var opps []waste.Opportunity
	for _, addr := range result.Addresses {
		if addr.AssociationId != nil {
			continue
		}

		opps = append(opps, waste.Opportunity{
			Provider:                waste.ProviderAWS,
			Region:                  ac.Region(),
			ResourceID:              aws.ToString(addr.AllocationId),
			ResourceName:            aws.ToString(addr.PublicIp),
			ResourceType:            resources.EC2EIP,
			Category:                waste.CategoryUnused,
			Confidence:              waste.ConfidenceHigh,
			EstimatedMonthlySavings: eipMonthlyRate,
			CurrentMonthlyCost:      eipMonthlyRate,
			Metadata: map[string]string{
				"public_ip": aws.ToString(addr.PublicIp),
			},
		})
	}
	return opps, nil
}

func nameTag(tags []ec2types.Tag) string {
	for _, t := range tags {
		if aws.ToString(t.Key) == "Name" {
			return aws.ToString(t.Value)
		}
	}
	return ""
}
