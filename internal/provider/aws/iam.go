package aws

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/smithy-go"

	"github.com/slipway/slipway/internal/constants"
	apperrors "github.com/slipway/slipway/internal/errors"
	"github.com/slipway/slipway/internal/manifest"
)

// defaultPolicyBinder grants roles by attaching managed policies to the
// execution roles the services run as. A grant's role names a policy, bare
// names resolving to AWS-managed policies.
type defaultPolicyBinder struct {
	client *iam.Client
}

func (c *defaultPolicyBinder) MissingGrants(ctx context.Context, project string, want []manifest.Grant) ([]manifest.Grant, error) {
	attached := make(map[string]map[string]bool)
	for _, grant := range want {
		role := roleName(grant.ServiceAccount)
		if _, ok := attached[role]; ok {
			continue
		}
		policies, err := c.attachedPolicies(ctx, role)
		if err != nil {
			return nil, err
		}
		attached[role] = policies
	}

	var missing []manifest.Grant
	for _, grant := range want {
		if !attached[roleName(grant.ServiceAccount)][policyARN(grant.Role)] {
			missing = append(missing, grant)
		}
	}
	return missing, nil
}

func (c *defaultPolicyBinder) attachedPolicies(ctx context.Context, role string) (map[string]bool, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.ProviderCallTimeout)
	defer cancel()

	policies := make(map[string]bool)
	var marker *string
	for {
		out, err := c.client.ListAttachedRolePolicies(ctx, &iam.ListAttachedRolePoliciesInput{
			RoleName: aws.String(role),
			Marker:   marker,
		})
		if err != nil {
			var noSuchEntity *iamtypes.NoSuchEntityException
			if errors.As(err, &noSuchEntity) {
				return nil, fmt.Errorf("iam role %q does not exist: %w", role, err)
			}
			if isAccessDenied(err) {
				return nil, apperrors.NewPermissionError("role/"+role, "cannot list attached role policies", err)
			}
			return nil, wrapError("list attached role policies", err)
		}
		for _, policy := range out.AttachedPolicies {
			policies[aws.ToString(policy.PolicyArn)] = true
		}
		if !out.IsTruncated {
			return policies, nil
		}
		marker = out.Marker
	}
}

func (c *defaultPolicyBinder) EnsureGrants(ctx context.Context, project string, grants []manifest.Grant) error {
	for _, grant := range grants {
		if err := c.attach(ctx, roleName(grant.ServiceAccount), policyARN(grant.Role)); err != nil {
			return err
		}
	}
	return nil
}

func (c *defaultPolicyBinder) attach(ctx context.Context, role, policy string) error {
	ctx, cancel := context.WithTimeout(ctx, constants.ProviderCallTimeout)
	defer cancel()

	// AttachRolePolicy succeeds when the policy is already on the role, so a
	// grant that appeared concurrently is absorbed, never an error.
	_, err := c.client.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
		RoleName:  aws.String(role),
		PolicyArn: aws.String(policy),
	})
	if isAccessDenied(err) {
		return apperrors.NewPermissionError("role/"+role, "cannot attach role policy", err)
	}
	return wrapError("attach role policy", err)
}

// roleName reduces a role ARN to the bare role name IAM calls take. Short
// names pass through.
func roleName(serviceAccount string) string {
	if _, name, ok := strings.Cut(serviceAccount, ":role/"); ok {
		return name
	}
	return serviceAccount
}

// policyARN expands a bare policy name into the AWS-managed policy ARN. Full
// ARNs pass through so account-local policies can be granted too.
func policyARN(role string) string {
	if strings.HasPrefix(role, "arn:") {
		return role
	}
	return "arn:aws:iam::aws:policy/" + role
}

func isAccessDenied(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "AccessDeniedException", "UnauthorizedOperation":
			return true
		}
	}
	return false
}
