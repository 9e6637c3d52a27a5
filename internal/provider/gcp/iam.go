package gcp

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"cloud.google.com/go/iam/apiv1/iampb"
	resourcemanager "cloud.google.com/go/resourcemanager/apiv3"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/slipway/slipway/internal/constants"
	apperrors "github.com/slipway/slipway/internal/errors"
	"github.com/slipway/slipway/internal/manifest"
)

type defaultPolicyBinder struct {
	client *resourcemanager.ProjectsClient
}

func (c *defaultPolicyBinder) MissingGrants(ctx context.Context, project string, want []manifest.Grant) ([]manifest.Grant, error) {
	policy, err := c.getPolicy(ctx, project)
	if err != nil {
		return nil, err
	}

	var missing []manifest.Grant
	for _, g := range want {
		if !bindingExists(policy.Bindings, g.Role, memberFor(project, g.ServiceAccount)) {
			missing = append(missing, g)
		}
	}
	return missing, nil
}

// EnsureGrants runs the read-modify-write cycle until the policy write
// sticks. Grants that appeared concurrently count as done; a policy that
// moves under us on every attempt is reported as a conflict.
func (c *defaultPolicyBinder) EnsureGrants(ctx context.Context, project string, grants []manifest.Grant) error {
	if len(grants) == 0 {
		return nil
	}

	var lastErr error
	for attempt := 0; attempt < constants.IAMRetryAttempts; attempt++ {
		policy, err := c.getPolicy(ctx, project)
		if err != nil {
			return err
		}

		changed := false
		for _, g := range grants {
			member := memberFor(project, g.ServiceAccount)
			if bindingExists(policy.Bindings, g.Role, member) {
				continue
			}
			addBinding(policy, g.Role, member)
			changed = true
		}
		if !changed {
			return nil
		}

		err = c.setPolicy(ctx, project, policy)
		if err == nil {
			return nil
		}
		switch status.Code(err) {
		case codes.Aborted, codes.FailedPrecondition:
			// Stale etag: another writer got there first. Re-read and retry.
			lastErr = err
			continue
		case codes.PermissionDenied:
			return apperrors.NewPermissionError("projects/"+project, "cannot modify project iam policy", err)
		}
		return wrapError("set project iam policy", err)
	}

	return apperrors.NewConflictError(constants.StageIAM, "projects/"+project,
		"project iam policy kept changing concurrently", lastErr)
}

func (c *defaultPolicyBinder) getPolicy(ctx context.Context, project string) (*iampb.Policy, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.ProviderCallTimeout)
	defer cancel()

	policy, err := c.client.GetIamPolicy(ctx, &iampb.GetIamPolicyRequest{Resource: "projects/" + project})
	if status.Code(err) == codes.PermissionDenied {
		return nil, apperrors.NewPermissionError("projects/"+project, "cannot read project iam policy", err)
	}
	if err != nil {
		return nil, wrapError("get project iam policy", err)
	}
	return policy, nil
}

func (c *defaultPolicyBinder) setPolicy(ctx context.Context, project string, policy *iampb.Policy) error {
	ctx, cancel := context.WithTimeout(ctx, constants.ProviderCallTimeout)
	defer cancel()

	_, err := c.client.SetIamPolicy(ctx, &iampb.SetIamPolicyRequest{
		Resource: "projects/" + project,
		Policy:   policy,
	})
	return err
}

// memberFor expands a short service account name into the policy member
// string. Full emails pass through for accounts living in another project.
func memberFor(project, serviceAccount string) string {
	if strings.Contains(serviceAccount, "@") {
		return "serviceAccount:" + serviceAccount
	}
	return fmt.Sprintf("serviceAccount:%s@%s.iam.gserviceaccount.com", serviceAccount, project)
}

func bindingExists(bindings []*iampb.Binding, role, member string) bool {
	for _, b := range bindings {
		if b.Role == role && slices.Contains(b.Members, member) {
			return true
		}
	}
	return false
}

// addBinding merges the member into an existing binding for the role when one
// exists, keeping the policy free of duplicate role entries.
func addBinding(policy *iampb.Policy, role, member string) {
	for _, b := range policy.Bindings {
		if b.Role == role {
			b.Members = append(b.Members, member)
			return
		}
	}
	policy.Bindings = append(policy.Bindings, &iampb.Binding{
		Role:    role,
		Members: []string{member},
	})
}
