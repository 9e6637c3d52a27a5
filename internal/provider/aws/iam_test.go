package aws

import (
	"fmt"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
)

func TestRoleName(t *testing.T) {
	tests := []struct {
		name           string
		serviceAccount string
		want           string
	}{
		{"short name passes through", "veo-backend", "veo-backend"},
		{"arn reduces to name", "arn:aws:iam::123456789012:role/veo-backend", "veo-backend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, roleName(tt.serviceAccount))
		})
	}
}

func TestPolicyARN(t *testing.T) {
	tests := []struct {
		name string
		role string
		want string
	}{
		{"bare name resolves to aws managed policy", "AmazonSNSFullAccess", "arn:aws:iam::aws:policy/AmazonSNSFullAccess"},
		{"full arn passes through", "arn:aws:iam::123456789012:policy/veo-publisher", "arn:aws:iam::123456789012:policy/veo-publisher"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policyARN(tt.role))
		})
	}
}

func TestIsAccessDenied(t *testing.T) {
	denied := &smithy.GenericAPIError{Code: "AccessDenied", Message: "not allowed"}

	assert.True(t, isAccessDenied(denied))
	assert.True(t, isAccessDenied(&smithy.GenericAPIError{Code: "AccessDeniedException"}))
	assert.True(t, isAccessDenied(fmt.Errorf("attach role policy: %w", denied)))
	assert.False(t, isAccessDenied(&smithy.GenericAPIError{Code: "Throttling"}))
	assert.False(t, isAccessDenied(fmt.Errorf("plain error")))
	assert.False(t, isAccessDenied(nil))
}
