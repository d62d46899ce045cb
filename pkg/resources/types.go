package resources

// AWS Resource Types
const (
	EC2Instance       = "AWS::EC2::Instance"
	EC2Volume         = "AWS::EC2::Volume"
	EC2EIP            = "AWS::EC2::EIP"
	RDSInstance       = "AWS::RDS::DBInstance"
	S3MultipartUpload = "AWS::S3::MultipartUpload"
	LambdaFunction    = "AWS::Lambda::Function"
	ElastiCacheNode   = "AWS::ElastiCache::CacheCluster"
	DynamoDBTable     = "AWS::DynamoDB::Table"
)
