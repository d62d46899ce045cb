package waste

import (
	"fmt"
	"strings"
	"time"
)

// Provider identifies a supported cloud platform.
type Provider string

const (
	ProviderAWS   Provider = "aws"
	ProviderAzure Provider = "azure"
	ProviderGCP   Provider = "gcp"
)

// ParseProvider normalizes user input into a Provider.
func ParseProvider(s string) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(s))) {
	case ProviderAWS:
		return ProviderAWS, nil
	case ProviderAzure:
		return ProviderAzure, nil
	case ProviderGCP:
		return ProviderGCP, nil
	default:
		return "", fmt.Errorf("unsupported provider %q (expected aws, azure or gcp)", s)
	}
}

// Category classifies why a resource is considered wasteful. The set is open:
// checks may report categories beyond the built-in four and they round-trip
// through the store untouched.
type Category string

const (
	CategoryIdle          Category = "idle"
	CategoryUnused        Category = "unused"
	CategoryUnderutilized Category = "underutilized"
	CategoryOversized     Category = "oversized"
)

// Confidence grades how certain a check is about a finding.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ScanStatus tracks the lifecycle of a scan row. A scan starts as Running and
// transitions exactly once, to Completed or Failed.
type ScanStatus string

const (
	StatusRunning   ScanStatus = "running"
	StatusCompleted ScanStatus = "completed"
	StatusFailed    ScanStatus = "failed"
)

// Opportunity is a single priced savings finding produced by a check.
// Opportunities are immutable once persisted.
type Opportunity struct {
	ID                      uint64            `json:"id,omitempty"`
	ScanID                  uint64            `json:"scan_id,omitempty"`
	Provider                Provider          `json:"provider"`
	Region                  string            `json:"region,omitempty"`
	ResourceID              string            `json:"resource_id"`
	ResourceName            string            `json:"resource_name,omitempty"`
	ResourceType            string            `json:"resource_type"`
	Category                Category          `json:"category"`
	Confidence              Confidence        `json:"confidence"`
	EstimatedMonthlySavings float64           `json:"estimated_monthly_savings"`
	CurrentMonthlyCost      float64           `json:"current_monthly_cost,omitempty"`
	Metadata                map[string]string `json:"metadata,omitempty"`
	DetectedAt              time.Time         `json:"detected_at"`
}

// Scan is one recorded scan run.
type Scan struct {
	ID               uint64     `json:"id"`
	Provider         Provider   `json:"provider"`
	Region           string     `json:"region,omitempty"`
	Status           ScanStatus `json:"status"`
	TotalSavings     float64    `json:"total_savings"`
	OpportunityCount int        `json:"opportunity_count"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	StartedAt        time.Time  `json:"started_at"`
	FinishedAt       time.Time  `json:"finished_at,omitempty"`
}

// Report bundles a finished scan with its findings. Reports are what the
// cache persists and what the CLI renders.
type Report struct {
	ScanID        uint64        `json:"scan_id"`
	Provider      Provider      `json:"provider"`
	Region        string        `json:"region,omitempty"`
	GeneratedAt   time.Time     `json:"generated_at"`
	TotalSavings  float64       `json:"total_savings"`
	Opportunities []Opportunity `json:"opportunities"`
}

// SumSavings totals the estimated monthly savings across findings.
func SumSavings(opps []Opportunity) float64 {
	var total float64
	for _, o := range opps {
		total += o.EstimatedMonthlySavings
	}
	return total
}
