package aws

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/vuhp/cloudthrift/pkg/providers"
	"github.com/vuhp/cloudthrift/pkg/resources"
	"github.com/vuhp/cloudthrift/pkg/waste"
)

// StaleMultipartUploads finds buckets carrying incomplete multipart uploads
// older than AgeDays. The parts are invisible in the console but billed as
// storage until aborted. Buckets that already have an abort lifecycle rule
// clean themselves up and are skipped.
type StaleMultipartUploads struct {
	AgeDays int
}

func NewStaleMultipartUploads(ageDays int) *StaleMultipartUploads {
	return &StaleMultipartUploads{AgeDays: ageDays}
}

func (*StaleMultipartUploads) Name() string { return "stale-multipart-uploads" }

func (*StaleMultipartUploads) Capabilities() []string {
	return []string{
		"s3:ListAllMyBuckets",
		"s3:GetBucketLocation",
		"s3:GetLifecycleConfiguration",
		"s3:ListBucketMultipartUploads",
	}
}

func (c *StaleMultipartUploads) Run(ctx context.Context, conn providers.Connection) ([]waste.Opportunity, error) {
	ac, err := awsConn(conn)
	if err != nil {
		return nil, err
	}

	result, err := ac.S3.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets: %w", err)
	}

	cutoff := time.Now().Add(-time.Duration(c.AgeDays) * 24 * time.Hour)

	var opps []waste.Opportunity
	for _, bucket := range result.Buckets {
		name := aws.ToString(bucket.Name)

		// ListBuckets is global; only touch buckets in the scanned region to
		// avoid redirection errors from the regional client.
		region, err := c.bucketRegion(ctx, ac, name)
		if err != nil || region != ac.Region() {
			continue
		}

		if c.hasAbortLifecycle(ctx, ac, name) {
			continue
		}

		stale, oldest, err := c.countStaleUploads(ctx, ac, name, cutoff)
		if err != nil {
			return nil, fmt.Errorf("failed to list multipart uploads for %s: %w", name, err)
		}
		if stale == 0 {
			continue
		}

		cost := float64(stale) * multipartUploadRate
		opps = append(opps, waste.Opportunity{
			Provider:                waste.ProviderAWS,
			Region:                  ac.Region(),
			ResourceID:              name,
			ResourceName:            name,
			ResourceType:            resources.S3MultipartUpload,
			Category:                waste.CategoryUnused,
			Confidence:              waste.ConfidenceLow,
			EstimatedMonthlySavings: cost,
			CurrentMonthlyCost:      cost,
			Metadata: map[string]string{
				"uploads": strconv.Itoa(stale),
				"oldest":  oldest.UTC().Format("2006-01-02"),
			},
		})
	}
	return opps, nil
}

func (*StaleMultipartUploads) bucketRegion(ctx context.Context, ac *Connection, bucket string) (string, error) {
	loc, err := ac.S3.GetBucketLocation(ctx, &s3.GetBucketLocationInput{Bucket: aws.String(bucket)})
	if err != nil {
		return "", err
	}
	region := string(loc.LocationConstraint)
	switch region {
	case "":
		// Legacy buckets report no constraint.
		region = "us-east-1"
	case "EU":
		region = "eu-west-1"
	}
	return region, nil
}

// hasAbortLifecycle checks for multipart upload abort rules. Errors read as
// "no lifecycle configured".
func (*StaleMultipartUploads) hasAbortLifecycle(ctx context.Context, ac *Connection, bucket string) bool {
	lc, err := ac.S3.GetBucketLifecycleConfiguration(ctx, &s3.GetBucketLifecycleConfigurationInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		return false
	}
	for _, rule := range lc.Rules {
		if rule.Status == s3types.ExpirationStatusEnabled && rule.AbortIncompleteMultipartUpload != nil {
			return true
		}
	}
	return false
}

func (*StaleMultipartUploads) countStaleUploads(ctx context.Context, ac *Connection, bucket string, cutoff time.Time) (int, time.Time, error) {
	var stale int
	var oldest time.Time

	paginator := s3.NewListMultipartUploadsPaginator(ac.S3, &s3.ListMultipartUploadsInput{
		Bucket: aws.String(bucket),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, time.Time{}, err
		}
		for _, upload := range page.Uploads {
			if upload.Initiated == nil || !upload.Initiated.Before(cutoff) {
				continue
			}
			stale++
			if oldest.IsZero() || upload.Initiated.Before(oldest) {
				oldest = *upload.Initiated
			}
		}
	}
	return stale, oldest, nil
}
