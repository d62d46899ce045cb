package aws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vuhp/cloudthrift/pkg/checks"
)

func forbiddenResponse(err error) error {
	return &smithyhttp.ResponseError{
		Response: &smithyhttp.Response{Response: &http.Response{StatusCode: http.StatusForbidden}},
		Err:      err,
	}
}

func TestClassify(t *testing.T) {
	classifier := NewClassifier()

	tests := []struct {
		name string
		err  error
		want any
	}{
		{
			name: "access denied code",
			err:  &smithy.GenericAPIError{Code: "AccessDenied", Message: "nope"},
			want: &checks.PermissionDenied{},
		},
		{
			name: "unauthorized operation code",
			err:  &smithy.GenericAPIError{Code: "UnauthorizedOperation", Message: "nope"},
			want: &checks.PermissionDenied{},
		},
		{
			name: "bare 403 without code",
			err:  forbiddenResponse(errors.New("forbidden")),
			want: &checks.PermissionDenied{},
		},
		{
			name: "iam deny phrase under generic code",
			err: &smithy.GenericAPIError{
				Code:    "ValidationError",
				Message: "User: arn:aws:iam::123456789012:user/ci is not authorized to perform: ec2:DescribeVolumes on resource vol-1",
			},
			want: &checks.PermissionDenied{},
		},
		{
			name: "phrase match is case sensitive",
			err:  errors.New("user IS NOT AUTHORIZED TO PERFORM this action"),
			want: &checks.Fatal{},
		},
		{
			name: "throttling code",
			err:  &smithy.GenericAPIError{Code: "Throttling", Message: "slow down"},
			want: &checks.TransientFailure{},
		},
		{
			name: "server error status",
			err: &smithyhttp.ResponseError{
				Response: &smithyhttp.Response{Response: &http.Response{StatusCode: http.StatusServiceUnavailable}},
				Err:      errors.New("unavailable"),
			},
			want: &checks.TransientFailure{},
		},
		{
			name: "deadline exceeded",
			err:  fmt.Errorf("fetching metrics: %w", context.DeadlineExceeded),
			want: &checks.TransientFailure{},
		},
		{
			name: "unknown error is fatal",
			err:  errors.New("disk on fire"),
			want: &checks.Fatal{},
		},
		{
			name: "denial code wins over server status",
			err: &smithyhttp.ResponseError{
				Response: &smithyhttp.Response{Response: &http.Response{StatusCode: http.StatusInternalServerError}},
				Err:      &smithy.GenericAPIError{Code: "AccessDenied", Message: "nope"},
			},
			want: &checks.PermissionDenied{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifier.Classify(tt.err)
			require.Error(t, got)

			switch tt.want.(type) {
			case *checks.PermissionDenied:
				var pd *checks.PermissionDenied
				assert.ErrorAs(t, got, &pd)
			case *checks.TransientFailure:
				var tf *checks.TransientFailure
				assert.ErrorAs(t, got, &tf)
			case *checks.Fatal:
				var fatal *checks.Fatal
				assert.ErrorAs(t, got, &fatal)
			}

			// The raw SDK error stays reachable for debugging.
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestClassifyNil(t *testing.T) {
	assert.NoError(t, NewClassifier().Classify(nil))
}

func TestClassifyTaggedErrorsPassThrough(t *testing.T) {
	classifier := NewClassifier()

	tagged := &checks.TransientFailure{Err: errors.New("retry me")}
	assert.Same(t, tagged, classifier.Classify(tagged))

	wrapped := fmt.Errorf("check wrapper: %w", &checks.PermissionDenied{Capability: "s3:ListAllMyBuckets"})
	assert.Equal(t, wrapped, classifier.Classify(wrapped))
}

func TestClassifyExtractsDeniedAction(t *testing.T) {
	err := &smithy.GenericAPIError{
		Code:    "AccessDeniedException",
		Message: "User: arn:aws:iam::123456789012:user/ci is not authorized to perform: dynamodb:ListTables because no identity-based policy allows it",
	}

	var pd *checks.PermissionDenied
	require.ErrorAs(t, NewClassifier().Classify(err), &pd)
	assert.Equal(t, "dynamodb:ListTables", pd.Capability)
}

func TestClassifyNoActionInMessage(t *testing.T) {
	err := &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}

	var pd *checks.PermissionDenied
	require.ErrorAs(t, NewClassifier().Classify(err), &pd)
	assert.Empty(t, pd.Capability)
}
