// Package gcp implements the provider collaborators against Google Cloud:
// Resource Manager for the project precondition and IAM policy, Service Usage
// for API enablement, Pub/Sub for event topics, Secret Manager for secret
// references, and Cloud Run / Cloud Functions for artifacts.
package gcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	resourcemanager "cloud.google.com/go/resourcemanager/apiv3"
	"cloud.google.com/go/resourcemanager/apiv3/resourcemanagerpb"
	"google.golang.org/api/cloudfunctions/v2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/pubsub/v1"
	"google.golang.org/api/run/v2"
	"google.golang.org/api/secretmanager/v1"
	"google.golang.org/api/serviceusage/v1"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/slipway/slipway/internal/constants"
	apperrors "github.com/slipway/slipway/internal/errors"
	"github.com/slipway/slipway/internal/provider"
)

// NewClients builds the client bundle for one region using application
// default credentials.
func NewClients(ctx context.Context, region string) (*provider.Clients, error) {
	projectsClient, err := resourcemanager.NewProjectsClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create projects client: %w", err)
	}

	serviceUsageSvc, err := serviceusage.NewService(ctx)
	if err != nil {
		return nil, fmt.Errorf("create service usage service: %w", err)
	}

	pubsubSvc, err := pubsub.NewService(ctx)
	if err != nil {
		return nil, fmt.Errorf("create pubsub service: %w", err)
	}

	secretManagerSvc, err := secretmanager.NewService(ctx)
	if err != nil {
		return nil, fmt.Errorf("create secret manager service: %w", err)
	}

	runSvc, err := run.NewService(ctx)
	if err != nil {
		return nil, fmt.Errorf("create run service: %w", err)
	}

	functionsSvc, err := cloudfunctions.NewService(ctx)
	if err != nil {
		return nil, fmt.Errorf("create cloud functions service: %w", err)
	}

	return &provider.Clients{
		Project: &defaultProjectChecker{client: projectsClient},
		APIs:    &defaultAPIEnabler{service: serviceUsageSvc},
		IAM:     &defaultPolicyBinder{client: projectsClient},
		Topics:  &defaultTopicAdmin{service: pubsubSvc},
		Secrets: &defaultSecretStore{service: secretManagerSvc},
		Artifacts: &defaultDeployer{
			run:       runSvc,
			functions: functionsSvc,
			region:    region,
		},
	}, nil
}

type defaultProjectChecker struct {
	client *resourcemanager.ProjectsClient
}

func (c *defaultProjectChecker) CheckProject(ctx context.Context, project string) error {
	ctx, cancel := context.WithTimeout(ctx, constants.ProviderCallTimeout)
	defer cancel()

	p, err := c.client.GetProject(ctx, &resourcemanagerpb.GetProjectRequest{Name: "projects/" + project})
	// The API answers NOT_FOUND as PERMISSION_DENIED when the caller cannot
	// see the project, so both mean the same thing to the operator.
	switch status.Code(err) {
	case codes.NotFound, codes.PermissionDenied:
		return apperrors.NewConfigError(project, "project not found or not accessible with current credentials", err)
	}
	if err != nil {
		return wrapError("get project", err)
	}
	if p.State != resourcemanagerpb.Project_ACTIVE {
		return apperrors.NewConfigError(project, fmt.Sprintf("project state is %s, not ACTIVE", p.State), nil)
	}
	return nil
}

type defaultAPIEnabler struct {
	service *serviceusage.Service
}

const serviceStateEnabled = "ENABLED"

func (c *defaultAPIEnabler) EnabledAPIs(ctx context.Context, project string, apis []string) (map[string]bool, error) {
	enabled := make(map[string]bool, len(apis))
	for _, api := range apis {
		state, err := c.serviceState(ctx, project, api)
		if err != nil {
			return nil, err
		}
		enabled[api] = state == serviceStateEnabled
	}
	return enabled, nil
}

func (c *defaultAPIEnabler) serviceState(ctx context.Context, project, api string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.ProviderCallTimeout)
	defer cancel()

	svc, err := c.service.Services.Get(apiName(project, api)).Context(ctx).Do()
	if err != nil {
		return "", wrapError("get service state", err)
	}
	return svc.State, nil
}

func (c *defaultAPIEnabler) EnableAPI(ctx context.Context, project, api string) error {
	ctx, cancel := context.WithTimeout(ctx, constants.OperationTimeout)
	defer cancel()

	op, err := c.service.Services.Enable(apiName(project, api), &serviceusage.EnableServiceRequest{}).
		Context(ctx).
		Do()
	if err != nil {
		return wrapError("enable service", err)
	}

	if op.Done {
		if op.Error != nil {
			return fmt.Errorf("enable service: %s", op.Error.Message)
		}
		return nil
	}

	return wrapError("wait for service enablement", c.waitForOperation(ctx, op.Name))
}

func (c *defaultAPIEnabler) waitForOperation(ctx context.Context, name string) error {
	for {
		op, err := c.service.Operations.Get(name).Context(ctx).Do()
		if err != nil {
			return wrapError("poll service usage operation", err)
		}
		if op.Done {
			if op.Error != nil {
				return fmt.Errorf("operation error: %s", op.Error.Message)
			}
			return nil
		}
		time.Sleep(constants.OperationPollInterval)
	}
}

func apiName(project, api string) string {
	return fmt.Sprintf("projects/%s/services/%s", project, api)
}

type defaultTopicAdmin struct {
	service *pubsub.Service
}

func (c *defaultTopicAdmin) TopicExists(ctx context.Context, project, topic string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.ProviderCallTimeout)
	defer cancel()

	_, err := c.service.Projects.Topics.Get(topicName(project, topic)).Context(ctx).Do()
	if isNotFound(err) {
		return false, nil
	}
	return err == nil, wrapError("get pubsub topic", err)
}

func (c *defaultTopicAdmin) EnsureTopic(ctx context.Context, project, topic string) error {
	ctx, cancel := context.WithTimeout(ctx, constants.ProviderCallTimeout)
	defer cancel()

	name := topicName(project, topic)
	_, err := c.service.Projects.Topics.Create(name, &pubsub.Topic{
		Labels: map[string]string{constants.ManagedByLabel: constants.ProjectName},
	}).Context(ctx).Do()
	if isAlreadyExists(err) {
		return nil
	}
	return wrapError("create pubsub topic", err)
}

func topicName(project, topic string) string {
	return fmt.Sprintf("projects/%s/topics/%s", project, topic)
}

type defaultSecretStore struct {
	service *secretmanager.Service
}

func (c *defaultSecretStore) LookupSecret(ctx context.Context, project, name string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.SecretLookupTimeout)
	defer cancel()

	secret, err := c.service.Projects.Secrets.Get(fmt.Sprintf("projects/%s/secrets/%s", project, name)).
		Context(ctx).
		Do()
	if isNotFound(err) {
		return "", apperrors.NewSecretNotFound(name, err)
	}
	if err != nil {
		return "", wrapError("get secret", err)
	}
	return secret.Name, nil
}

func wrapError(action string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", action, err)
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusNotFound
	}
	return false
}

func isAlreadyExists(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusConflict
	}
	return false
}
