package aws

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/elasticache"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go/middleware"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/vuhp/cloudthrift/pkg/providers"
	"github.com/vuhp/cloudthrift/pkg/version"
	"github.com/vuhp/cloudthrift/pkg/waste"
)

// Vault bundle keys the connector understands.
const (
	KeyAccessKeyID     = "access_key_id"
	KeySecretAccessKey = "secret_access_key"
	KeySessionToken    = "session_token"
)

// EC2Client is the EC2 surface the checks depend on.
type EC2Client interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	DescribeVolumes(ctx context.Context, params *ec2.DescribeVolumesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error)
	DescribeAddresses(ctx context.Context, params *ec2.DescribeAddressesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeAddressesOutput, error)
}

// S3Client is the S3 surface the checks depend on.
type S3Client interface {
	ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	GetBucketLocation(ctx context.Context, params *s3.GetBucketLocationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error)
	GetBucketLifecycleConfiguration(ctx context.Context, params *s3.GetBucketLifecycleConfigurationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLifecycleConfigurationOutput, error)
	ListMultipartUploads(ctx context.Context, params *s3.ListMultipartUploadsInput, optFns ...func(*s3.Options)) (*s3.ListMultipartUploadsOutput, error)
}

// RDSClient is the RDS surface the checks depend on.
type RDSClient interface {
	DescribeDBInstances(ctx context.Context, params *rds.DescribeDBInstancesInput, optFns ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error)
}

// LambdaClient is the Lambda surface the checks depend on.
type LambdaClient interface {
	ListFunctions(ctx context.Context, params *lambda.ListFunctionsInput, optFns ...func(*lambda.Options)) (*lambda.ListFunctionsOutput, error)
}

// ElastiCacheClient is the ElastiCache surface the checks depend on.
type ElastiCacheClient interface {
	DescribeCacheClusters(ctx context.Context, params *elasticache.DescribeCacheClustersInput, optFns ...func(*elasticache.Options)) (*elasticache.DescribeCacheClustersOutput, error)
}

// DynamoDBClient is the DynamoDB surface the checks depend on.
type DynamoDBClient interface {
	ListTables(ctx context.Context, params *dynamodb.ListTablesInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// CloudWatchClient is the metrics surface the checks depend on.
type CloudWatchClient interface {
	GetMetricStatistics(ctx context.Context, params *cloudwatch.GetMetricStatisticsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error)
	GetMetricData(ctx context.Context, params *cloudwatch.GetMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricDataOutput, error)
}

// Connection is a verified AWS session plus the service clients the default
// checks use.
type Connection struct {
	EC2         EC2Client
	S3          S3Client
	RDS         RDSClient
	Lambda      LambdaClient
	ElastiCache ElastiCacheClient
	DynamoDB    DynamoDBClient
	CloudWatch  CloudWatchClient

	region  string
	account string
}

func (c *Connection) Kind() waste.Provider { return waste.ProviderAWS }
func (c *Connection) Region() string       { return c.region }
func (c *Connection) Account() string      { return c.account }

// awsConn unwraps the provider-agnostic connection handed to a check.
func awsConn(conn providers.Connection) (*Connection, error) {
	c, ok := conn.(*Connection)
	if !ok {
		return nil, fmt.Errorf("expected aws connection, got %T", conn)
	}
	return c, nil
}

// Connector establishes AWS sessions. Credentials resolve in order: an
// explicit vault bundle, then a named profile, then the ambient chain (env,
// shared config, IMDS).
type Connector struct{}

func NewConnector() *Connector { return &Connector{} }

func (*Connector) Kind() waste.Provider { return waste.ProviderAWS }

// Connect loads configuration and verifies the session with STS before any
// check runs. A failure here fails the whole scan.
func (*Connector) Connect(ctx context.Context, opts providers.ConnectOptions) (providers.Connection, error) {
	loadOpts := []func(*config.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(opts.Profile))
	}
	if id := opts.Credentials[KeyAccessKeyID]; id != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			id, opts.Credentials[KeySecretAccessKey], opts.Credentials[KeySessionToken],
		)))
	}

	// Endpoint overrides are for local mocking.
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = os.Getenv("AWS_ENDPOINT_URL")
	}
	if endpoint != "" {
		loadOpts = append(loadOpts, config.WithBaseEndpoint(endpoint))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	// Inject a custom User-Agent header for usage tracking and API quotas.
	cfg.APIOptions = append(cfg.APIOptions, func(stack *middleware.Stack) error {
		return stack.Build.Add(middleware.BuildMiddlewareFunc("UserAgent", func(ctx context.Context, input middleware.BuildInput, next middleware.BuildHandler) (
			middleware.BuildOutput, middleware.Metadata, error,
		) {
			if req, ok := input.Request.(*smithyhttp.Request); ok {
				ua := req.Header.Get("User-Agent")
				if ua == "" {
					ua = version.AppName + "/" + version.Current
				}
				req.Header.Set("User-Agent", fmt.Sprintf("%s (%s)", ua, version.AppName))
			}
			return next.HandleBuild(ctx, input)
		}), middleware.After)
	})

	identity, err := sts.NewFromConfig(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to get caller identity: %w", err)
	}

	return &Connection{
		EC2:         ec2.NewFromConfig(cfg),
		S3:          s3.NewFromConfig(cfg),
		RDS:         rds.NewFromConfig(cfg),
		Lambda:      lambda.NewFromConfig(cfg),
		ElastiCache: elasticache.NewFromConfig(cfg),
		DynamoDB:    dynamodb.NewFromConfig(cfg),
		CloudWatch:  cloudwatch.NewFromConfig(cfg),
		region:      cfg.Region,
		account:     aws.ToString(identity.Account),
	}, nil
}
