// Package aws implements the provider collaborators against AWS: STS for the
// account precondition, IAM managed-policy attachments for role grants, SNS
// for event topics, SSM Parameter Store for secret references, and Lambda for
// artifacts. Container services and zip functions both deploy as Lambda
// functions, image-packaged and zip-packaged respectively.
package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/slipway/slipway/internal/constants"
	apperrors "github.com/slipway/slipway/internal/errors"
	"github.com/slipway/slipway/internal/provider"
)

// NewClients builds the client bundle for one region using the default
// credential chain.
func NewClients(ctx context.Context, region string) (*provider.Clients, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &provider.Clients{
		Project: &defaultProjectChecker{client: sts.NewFromConfig(cfg)},
		APIs:    defaultAPIEnabler{},
		IAM:     &defaultPolicyBinder{client: iam.NewFromConfig(cfg)},
		Topics:  &defaultTopicAdmin{client: sns.NewFromConfig(cfg), region: region},
		Secrets: &defaultSecretStore{client: ssm.NewFromConfig(cfg)},
		Artifacts: &defaultDeployer{
			lambda: lambda.NewFromConfig(cfg),
			sns:    sns.NewFromConfig(cfg),
			region: region,
		},
	}, nil
}

type defaultProjectChecker struct {
	client *sts.Client
}

func (c *defaultProjectChecker) CheckProject(ctx context.Context, project string) error {
	ctx, cancel := context.WithTimeout(ctx, constants.ProviderCallTimeout)
	defer cancel()

	out, err := c.client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return wrapError("get caller identity", err)
	}

	account := aws.ToString(out.Account)
	if account == "" {
		return fmt.Errorf("sts returned an empty account id")
	}
	if account != project {
		return apperrors.NewConfigError(project,
			fmt.Sprintf("credentials belong to account %s, not %s", account, project), nil)
	}
	return nil
}

// defaultAPIEnabler is a structural no-op: AWS service endpoints are always
// available, so every requirement reads as enabled and enabling never issues
// a call.
type defaultAPIEnabler struct{}

func (defaultAPIEnabler) EnabledAPIs(_ context.Context, _ string, apis []string) (map[string]bool, error) {
	enabled := make(map[string]bool, len(apis))
	for _, api := range apis {
		enabled[api] = true
	}
	return enabled, nil
}

func (defaultAPIEnabler) EnableAPI(context.Context, string, string) error {
	return nil
}

type defaultTopicAdmin struct {
	client *sns.Client
	region string
}

func (c *defaultTopicAdmin) TopicExists(ctx context.Context, project, topic string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.ProviderCallTimeout)
	defer cancel()

	_, err := c.client.GetTopicAttributes(ctx, &sns.GetTopicAttributesInput{
		TopicArn: aws.String(topicARN(c.region, project, topic)),
	})
	var notFound *snstypes.NotFoundException
	if errors.As(err, &notFound) {
		return false, nil
	}
	return err == nil, wrapError("get topic attributes", err)
}

func (c *defaultTopicAdmin) EnsureTopic(ctx context.Context, project, topic string) error {
	ctx, cancel := context.WithTimeout(ctx, constants.ProviderCallTimeout)
	defer cancel()

	// CreateTopic returns the existing topic's ARN when the name is already
	// taken with the same attributes, so a lost creation race converges here.
	_, err := c.client.CreateTopic(ctx, &sns.CreateTopicInput{
		Name: aws.String(topic),
		Tags: []snstypes.Tag{
			{Key: aws.String(constants.ManagedByLabel), Value: aws.String(constants.ProjectName)},
		},
	})
	return wrapError("create topic", err)
}

func topicARN(region, account, topic string) string {
	return fmt.Sprintf("arn:aws:sns:%s:%s:%s", region, account, topic)
}

type defaultSecretStore struct {
	client *ssm.Client
}

// LookupSecret resolves a parameter name to its ARN. Parameters are
// account-scoped, so the project argument is already pinned by the
// credentials check.
func (c *defaultSecretStore) LookupSecret(ctx context.Context, _, name string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.SecretLookupTimeout)
	defer cancel()

	out, err := c.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(false),
	})
	var notFound *ssmtypes.ParameterNotFound
	if errors.As(err, &notFound) {
		return "", apperrors.NewSecretNotFound(name, err)
	}
	if err != nil {
		return "", wrapError("get parameter", err)
	}
	if out.Parameter == nil || out.Parameter.ARN == nil {
		return "", fmt.Errorf("unexpected response from parameter store")
	}
	return aws.ToString(out.Parameter.ARN), nil
}

func wrapError(action string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", action, err)
}
