package aws

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/elasticache"

	"github.com/vuhp/cloudthrift/pkg/providers"
	"github.com/vuhp/cloudthrift/pkg/resources"
	"github.com/vuhp/cloudthrift/pkg/waste"
)

// IdleCacheClusters finds ElastiCache clusters whose CPU never left single
// digits over the window. Caches run hot or they are decoration.
type IdleCacheClusters struct {
	IdleDays   int
	CPUPercent float64
}

func NewIdleCacheClusters(idleDays int, cpuPercent float64) *IdleCacheClusters {
	return &IdleCacheClusters{IdleDays: idleDays, CPUPercent: cpuPercent}
}

func (*IdleCacheClusters) Name() string { return "idle-cache-clusters" }

func (*IdleCacheClusters) Capabilities() []string {
	return []string{"elasticache:DescribeCacheClusters", "cloudwatch:GetMetricStatistics"}
}

func (c *IdleCacheClusters) Run(ctx context.Context, conn providers.Connection) ([]waste.Opportunity, error) {
	ac, err := awsConn(conn)
	if err != nil {
		return nil, err
	}

	var opps []waste.Opportunity
	paginator := elasticache.NewDescribeCacheClustersPaginator(ac.ElastiCache, &elasticache.DescribeCacheClustersInput{
		ShowCacheNodeInfo: aws.Bool(true),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe cache clusters: %w", err)
		}

		for _, cluster := range page.CacheClusters {
			if aws.ToString(cluster.CacheClusterStatus) != "available" {
				continue
			}
			id := aws.ToString(cluster.CacheClusterId)

			maxCPU, sampled, err := c.peakCPU(ctx, ac, id)
			if err != nil {
				return nil, fmt.Errorf("failed to fetch cpu for %s: %w", id, err)
			}
			// No datapoints usually means the cluster is younger than the
			// window; do not judge it.
			if !sampled || maxCPU >= c.CPUPercent {
				continue
			}

			nodeType := aws.ToString(cluster.CacheNodeType)
			nodes := aws.ToInt32(cluster.NumCacheNodes)
			cost := cacheClusterMonthlyCost(nodeType, nodes)

			opps = append(opps, waste.Opportunity{
				Provider:                waste.ProviderAWS,
				Region:                  ac.Region(),
				ResourceID:              id,
				ResourceName:            id,
				ResourceType:            resources.ElastiCacheNode,
				Category:                waste.CategoryUnderutilized,
				Confidence:              waste.ConfidenceMedium,
				EstimatedMonthlySavings: cost,
				CurrentMonthlyCost:      cost,
				Metadata: map[string]string{
					"engine":    aws.ToString(cluster.Engine),
					"node_type": nodeType,
					"nodes":     strconv.Itoa(int(nodes)),
					"max_cpu":   strconv.FormatFloat(maxCPU, 'f', 1, 64),
				},
			})
		}
	}
	return opps, nil
}

// peakCPU returns the highest daily CPU maximum over the window.
func (c *IdleCacheClusters) peakCPU(ctx context.Context, ac *Connection, clusterID string) (float64, bool, error) {
	endTime := time.Now()
	startTime := endTime.Add(-time.Duration(c.IdleDays) * 24 * time.Hour)

	out, err := ac.CloudWatch.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
		Namespace:  aws.String("AWS/ElastiCache"),
		MetricName: aws.String("CPUUtilization"),
		Dimensions: []cwtypes.Dimension{{Name: aws.String("CacheClusterId"), Value: aws.String(clusterID)}},
		StartTime:  &startTime,
		EndTime:    &endTime,
		Period:     aws.Int32(86400),
		Statistics: []cwtypes.Statistic{cwtypes.StatisticMaximum},
	})
	if err != nil {
		return 0, false, err
	}

	maxCPU := 0.0
	for _, dp := range out.Datapoints {
		if v := aws.ToFloat64(dp.Maximum); v > maxCPU {
			maxCPU = v
		}
	}
	return maxCPU, len(out.Datapoints) > 0, nil
}
