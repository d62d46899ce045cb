package aws

import (
	"context"
	"errors"
	"regexp"

	"github.com/aws/smithy-go"

	"github.com/vuhp/cloudthrift/pkg/checks"
)

// signature lists the ways AWS spells an authorization denial. Codes cover
// the services the default checks call; phrases catch IAM deny messages that
// arrive under generic codes.
var signature = checks.Signature{
	Codes: []string{
		"AccessDenied",
		"AccessDeniedException",
		"UnauthorizedOperation",
		"AuthFailure",
		"AuthorizationError",
	},
	Phrases: []string{
		"is not authorized to perform",
		"explicit deny",
		"no identity-based policy allows",
	},
}

// transientCodes are retryable per the SDK's own retryer tables.
var transientCodes = map[string]struct{}{
	"Throttling":               {},
	"ThrottlingException":      {},
	"TooManyRequestsException": {},
	"RequestLimitExceeded":     {},
	"ServiceUnavailable":       {},
	"RequestTimeout":           {},
}

// actionPattern pulls the IAM action out of messages like
// "User: arn:... is not authorized to perform: ec2:DescribeVolumes".
var actionPattern = regexp.MustCompile(`not authorized to perform:?\s+([A-Za-z0-9]+:[A-Za-z0-9*]+)`)

// Classifier maps raw SDK errors onto the engine's failure kinds.
type Classifier struct{}

func NewClassifier() Classifier { return Classifier{} }

func (Classifier) Classify(err error) error {
	if err == nil {
		return nil
	}

	// Checks may classify themselves; tagged errors pass through untouched.
	var pd *checks.PermissionDenied
	var tf *checks.TransientFailure
	var fatal *checks.Fatal
	if errors.As(err, &pd) || errors.As(err, &tf) || errors.As(err, &fatal) {
		return err
	}

	code, status, message := facets(err)

	if signature.Denial(code, status, message) {
		return &checks.PermissionDenied{Capability: deniedAction(message), Err: err}
	}
	if _, ok := transientCodes[code]; ok || status >= 500 || errors.Is(err, context.DeadlineExceeded) {
		return &checks.TransientFailure{Err: err}
	}
	return &checks.Fatal{Err: err}
}

// facets extracts the smithy error code, HTTP status and message text. The
// status comes through an interface match so both the smithy and the SDK
// response error wrappers are recognized.
func facets(err error) (code string, status int, message string) {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code = apiErr.ErrorCode()
	}
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) {
		status = respErr.HTTPStatusCode()
	}
	return code, status, err.Error()
}

func deniedAction(message string) string {
	if m := actionPattern.FindStringSubmatch(message); m != nil {
		return m[1]
	}
	return ""
}
