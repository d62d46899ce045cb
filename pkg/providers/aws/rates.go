package aws

// Static us-east-1 on-demand list rates. Good enough for ranking waste;
// estimates are labelled as such in reports.
const (
	hoursPerMonth = 730

	// Elastic IPs idle or attached to stopped instances.
	eipMonthlyRate = 3.60

	// gp2 storage retained by a stopped RDS instance, per GB-month.
	rdsStorageRate = 0.115

	// Rough storage carry cost of an abandoned multipart upload.
	multipartUploadRate = 0.50

	// Baseline for a deployed-but-idle Lambda (logs, storage, config drift).
	idleFunctionRate = 1.50

	dynamoReadHourlyRate  = 0.00013
	dynamoWriteHourlyRate = 0.00065
)

// ebsRates maps volume types to per GB-month storage cost.
var ebsRates = map[string]float64{
	"gp2":      0.10,
	"gp3":      0.08,
	"io1":      0.125,
	"io2":      0.125,
	"st1":      0.045,
	"sc1":      0.015,
	"standard": 0.05,
}

func ebsMonthlyCost(volumeType string, sizeGiB int32) float64 {
	rate, ok := ebsRates[volumeType]
	if !ok {
		rate = 0.08
	}
	return rate * float64(sizeGiB)
}

// cacheNodeRates maps node types to hourly on-demand cost.
var cacheNodeRates = map[string]float64{
	"cache.t3.micro":  0.017,
	"cache.t3.small":  0.034,
	"cache.t3.medium": 0.068,
	"cache.t4g.micro": 0.016,
	"cache.t4g.small": 0.032,
	"cache.m5.large":  0.156,
	"cache.m6g.large": 0.149,
	"cache.r5.large":  0.216,
	"cache.r6g.large": 0.206,
}

func cacheClusterMonthlyCost(nodeType string, nodes int32) float64 {
	rate, ok := cacheNodeRates[nodeType]
	if !ok {
		rate = 0.068
	}
	return rate * hoursPerMonth * float64(nodes)
}

func dynamoProvisionedMonthlyCost(readUnits, writeUnits int64) float64 {
	return float64(readUnits)*dynamoReadHourlyRate*hoursPerMonth +
		float64(writeUnits)*dynamoWriteHourlyRate*hoursPerMonth
}

// OverrideRates merges user-supplied rates into the static tables. Must be
// called before any scan starts; the tables are read without locking.
func OverrideRates(ebs, cacheNodes map[string]float64) {
	for volumeType, rate := range ebs {
		ebsRates[volumeType] = rate
	}
	for nodeType, rate := range cacheNodes {
		cacheNodeRates[nodeType] = rate
	}
}
