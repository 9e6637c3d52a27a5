package aws

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/slipway/slipway/internal/constants"
	"github.com/slipway/slipway/internal/provider"
	"github.com/slipway/slipway/internal/secrets"
	"github.com/slipway/slipway/internal/vars"
)

// defaultDeployer pushes both artifact kinds as Lambda functions: services as
// image-packaged functions, functions as zip packages pulled from their s3://
// archive. Deployed state reads back into the shared normal form so the
// reconciler can diff it against the manifest.
type defaultDeployer struct {
	lambda *lambda.Client
	sns    *sns.Client
	region string
}

// Lambda reports neither the original s3:// reference nor the event
// subscription on a GetFunction read, so both ride along as tags.
const (
	sourceRefTag = constants.ProjectName + "-source"
	triggerTag   = constants.ProjectName + "-trigger"
)

const ssmParameterARNPrefix = "arn:aws:ssm:"

func (c *defaultDeployer) functionARN(project, name string) string {
	return fmt.Sprintf("arn:aws:lambda:%s:%s:function:%s", c.region, project, name)
}

func (c *defaultDeployer) CurrentArtifact(
	ctx context.Context,
	project, name string,
	kind constants.ArtifactKind,
) (*provider.ArtifactState, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.ProviderCallTimeout)
	defer cancel()

	out, err := c.lambda.GetFunction(ctx, &lambda.GetFunctionInput{
		FunctionName: aws.String(name),
	})
	var notFound *lambdatypes.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapError("get function", err)
	}
	return functionState(project, out), nil
}

func (c *defaultDeployer) CreateArtifact(
	ctx context.Context,
	project string,
	desired *provider.ArtifactState,
) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.OperationTimeout)
	defer cancel()

	input, err := createFunctionInput(project, desired)
	if err != nil {
		return "", err
	}

	out, err := c.lambda.CreateFunction(ctx, input)
	var conflict *lambdatypes.ResourceConflictException
	if errors.As(err, &conflict) {
		// Lost a create race: converge by updating instead.
		return c.UpdateArtifact(ctx, project, desired)
	}
	if err != nil {
		return "", wrapError("create function", err)
	}

	if waitErr := c.waitActive(ctx, desired.Name); waitErr != nil {
		return "", wrapError("wait for function creation", waitErr)
	}

	if desired.TriggerTopic != "" {
		if err := c.ensureSubscription(ctx, project, desired.Name, desired.TriggerTopic); err != nil {
			return "", err
		}
	}
	return aws.ToString(out.FunctionArn), nil
}

func (c *defaultDeployer) UpdateArtifact(
	ctx context.Context,
	project string,
	desired *provider.ArtifactState,
) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.OperationTimeout)
	defer cancel()

	arn := c.functionARN(project, desired.Name)
	tags, err := c.lambda.ListTags(ctx, &lambda.ListTagsInput{Resource: aws.String(arn)})
	if err != nil {
		return "", wrapError("list function tags", err)
	}
	previousTopic := tags.Tags[triggerTag]

	codeInput, err := updateFunctionCodeInput(desired)
	if err != nil {
		return "", err
	}
	if _, err := c.lambda.UpdateFunctionCode(ctx, codeInput); err != nil {
		return "", wrapError("update function code", err)
	}
	if waitErr := c.waitUpdated(ctx, desired.Name); waitErr != nil {
		return "", wrapError("wait for code update", waitErr)
	}

	out, err := c.lambda.UpdateFunctionConfiguration(ctx, updateFunctionConfigurationInput(project, desired))
	if err != nil {
		return "", wrapError("update function configuration", err)
	}
	if waitErr := c.waitUpdated(ctx, desired.Name); waitErr != nil {
		return "", wrapError("wait for configuration update", waitErr)
	}

	if err := c.syncTags(ctx, arn, desired); err != nil {
		return "", err
	}

	if previousTopic != desired.TriggerTopic {
		if previousTopic != "" {
			if err := c.removeSubscription(ctx, project, desired.Name, previousTopic); err != nil {
				return "", err
			}
		}
		if desired.TriggerTopic != "" {
			if err := c.ensureSubscription(ctx, project, desired.Name, desired.TriggerTopic); err != nil {
				return "", err
			}
		}
	}
	return aws.ToString(out.FunctionArn), nil
}

func (c *defaultDeployer) waitActive(ctx context.Context, name string) error {
	waiter := lambda.NewFunctionActiveV2Waiter(c.lambda)
	return waiter.Wait(ctx, &lambda.GetFunctionInput{
		FunctionName: aws.String(name),
	}, constants.OperationTimeout)
}

func (c *defaultDeployer) waitUpdated(ctx context.Context, name string) error {
	waiter := lambda.NewFunctionUpdatedV2Waiter(c.lambda)
	return waiter.Wait(ctx, &lambda.GetFunctionInput{
		FunctionName: aws.String(name),
	}, constants.OperationTimeout)
}

// syncTags makes the function's managed tags match the desired state,
// dropping the ones that no longer apply.
func (c *defaultDeployer) syncTags(ctx context.Context, arn string, desired *provider.ArtifactState) error {
	want := resourceTags(desired)

	var stale []string
	for _, key := range []string{sourceRefTag, triggerTag} {
		if _, ok := want[key]; !ok {
			stale = append(stale, key)
		}
	}
	if len(stale) > 0 {
		_, err := c.lambda.UntagResource(ctx, &lambda.UntagResourceInput{
			Resource: aws.String(arn),
			TagKeys:  stale,
		})
		if err != nil {
			return wrapError("untag function", err)
		}
	}

	_, err := c.lambda.TagResource(ctx, &lambda.TagResourceInput{
		Resource: aws.String(arn),
		Tags:     want,
	})
	return wrapError("tag function", err)
}

// ensureSubscription lets the topic invoke the function and subscribes it.
// Both calls tolerate the target already being in place.
func (c *defaultDeployer) ensureSubscription(ctx context.Context, project, name, topic string) error {
	_, err := c.lambda.AddPermission(ctx, &lambda.AddPermissionInput{
		FunctionName: aws.String(name),
		StatementId:  aws.String(statementID(topic)),
		Action:       aws.String("lambda:InvokeFunction"),
		Principal:    aws.String("sns.amazonaws.com"),
		SourceArn:    aws.String(topicARN(c.region, project, topic)),
	})
	var conflict *lambdatypes.ResourceConflictException
	if err != nil && !errors.As(err, &conflict) {
		return wrapError("add invoke permission", err)
	}

	_, err = c.sns.Subscribe(ctx, &sns.SubscribeInput{
		TopicArn: aws.String(topicARN(c.region, project, topic)),
		Protocol: aws.String("lambda"),
		Endpoint: aws.String(c.functionARN(project, name)),
	})
	return wrapError("subscribe function to topic", err)
}

func (c *defaultDeployer) removeSubscription(ctx context.Context, project, name, topic string) error {
	_, err := c.lambda.RemovePermission(ctx, &lambda.RemovePermissionInput{
		FunctionName: aws.String(name),
		StatementId:  aws.String(statementID(topic)),
	})
	var notFound *lambdatypes.ResourceNotFoundException
	if err != nil && !errors.As(err, &notFound) {
		return wrapError("remove invoke permission", err)
	}

	arn := c.functionARN(project, name)
	topicArn := topicARN(c.region, project, topic)
	var next *string
	for {
		out, err := c.sns.ListSubscriptionsByTopic(ctx, &sns.ListSubscriptionsByTopicInput{
			TopicArn:  aws.String(topicArn),
			NextToken: next,
		})
		if err != nil {
			var topicMissing *snstypes.NotFoundException
			if errors.As(err, &topicMissing) {
				return nil
			}
			return wrapError("list topic subscriptions", err)
		}
		for _, sub := range out.Subscriptions {
			if aws.ToString(sub.Endpoint) != arn {
				continue
			}
			_, err := c.sns.Unsubscribe(ctx, &sns.UnsubscribeInput{
				SubscriptionArn: sub.SubscriptionArn,
			})
			if err != nil {
				return wrapError("unsubscribe function from topic", err)
			}
		}
		if out.NextToken == nil {
			return nil
		}
		next = out.NextToken
	}
}

func createFunctionInput(project string, desired *provider.ArtifactState) (*lambda.CreateFunctionInput, error) {
	input := &lambda.CreateFunctionInput{
		FunctionName: aws.String(desired.Name),
		Role:         aws.String(roleARN(project, desired.ServiceAccount)),
		MemorySize:   aws.Int32(int32(desired.MemoryMiB)),
		Timeout:      aws.Int32(int32(desired.TimeoutSeconds)),
		Environment:  &lambdatypes.Environment{Variables: toFunctionEnv(desired.Env, desired.Secrets)},
		Tags:         resourceTags(desired),
	}

	if desired.Kind == constants.KindService {
		input.PackageType = lambdatypes.PackageTypeImage
		input.Code = &lambdatypes.FunctionCode{ImageUri: aws.String(desired.Image)}
		return input, nil
	}

	bucket, key, err := parseArchiveRef(desired.Source)
	if err != nil {
		return nil, err
	}
	input.PackageType = lambdatypes.PackageTypeZip
	input.Code = &lambdatypes.FunctionCode{
		S3Bucket: aws.String(bucket),
		S3Key:    aws.String(key),
	}
	input.Runtime = lambdatypes.Runtime(desired.Runtime)
	input.Handler = aws.String(desired.EntryPoint)
	return input, nil
}

func updateFunctionCodeInput(desired *provider.ArtifactState) (*lambda.UpdateFunctionCodeInput, error) {
	input := &lambda.UpdateFunctionCodeInput{FunctionName: aws.String(desired.Name)}
	if desired.Kind == constants.KindService {
		input.ImageUri = aws.String(desired.Image)
		return input, nil
	}

	bucket, key, err := parseArchiveRef(desired.Source)
	if err != nil {
		return nil, err
	}
	input.S3Bucket = aws.String(bucket)
	input.S3Key = aws.String(key)
	return input, nil
}

func updateFunctionConfigurationInput(project string, desired *provider.ArtifactState) *lambda.UpdateFunctionConfigurationInput {
	input := &lambda.UpdateFunctionConfigurationInput{
		FunctionName: aws.String(desired.Name),
		Role:         aws.String(roleARN(project, desired.ServiceAccount)),
		MemorySize:   aws.Int32(int32(desired.MemoryMiB)),
		Timeout:      aws.Int32(int32(desired.TimeoutSeconds)),
		Environment:  &lambdatypes.Environment{Variables: toFunctionEnv(desired.Env, desired.Secrets)},
	}
	if desired.Kind == constants.KindFunction {
		input.Runtime = lambdatypes.Runtime(desired.Runtime)
		input.Handler = aws.String(desired.EntryPoint)
	}
	return input
}

func resourceTags(desired *provider.ArtifactState) map[string]string {
	tags := map[string]string{constants.ManagedByLabel: constants.ProjectName}
	if desired.Source != "" {
		tags[sourceRefTag] = desired.Source
	}
	if desired.TriggerTopic != "" {
		tags[triggerTag] = desired.TriggerTopic
	}
	return tags
}

// functionState maps a deployed function back into the shared normal form.
func functionState(project string, out *lambda.GetFunctionOutput) *provider.ArtifactState {
	cfg := out.Configuration
	env := map[string]string{}
	if cfg.Environment != nil {
		env = cfg.Environment.Variables
	}
	plain, refs := fromFunctionEnv(env)

	state := &provider.ArtifactState{
		Name:           aws.ToString(cfg.FunctionName),
		Kind:           constants.KindFunction,
		Runtime:        string(cfg.Runtime),
		EntryPoint:     aws.ToString(cfg.Handler),
		ServiceAccount: shortRoleName(project, aws.ToString(cfg.Role)),
		Env:            plain,
		Secrets:        refs,
		MemoryMiB:      int64(aws.ToInt32(cfg.MemorySize)),
		TimeoutSeconds: int64(aws.ToInt32(cfg.Timeout)),
	}
	if cfg.PackageType == lambdatypes.PackageTypeImage {
		state.Kind = constants.KindService
		if out.Code != nil {
			state.Image = aws.ToString(out.Code.ImageUri)
		}
	}
	state.Source = out.Tags[sourceRefTag]
	state.TriggerTopic = out.Tags[triggerTag]
	state.Normalize()
	return state
}

// toFunctionEnv folds the secret references into the environment: each secret
// variable carries its parameter ARN, resolved by the runtime.
func toFunctionEnv(env vars.Set, refs []secrets.ResolvedRef) map[string]string {
	merged := make(map[string]string, len(env)+len(refs))
	maps.Copy(merged, env)
	for _, ref := range refs {
		merged[ref.Env] = ref.Ref
	}
	return merged
}

// fromFunctionEnv inverts toFunctionEnv. Values carrying a parameter ARN are
// secret references by construction; everything else is a plain variable.
func fromFunctionEnv(env map[string]string) (vars.Set, []secrets.ResolvedRef) {
	plain := vars.Set{}
	var refs []secrets.ResolvedRef
	for name, value := range env {
		if strings.HasPrefix(value, ssmParameterARNPrefix) {
			refs = append(refs, secrets.ResolvedRef{
				Secret:  parameterName(value),
				Env:     name,
				Ref:     value,
				Version: secrets.DefaultVersion,
			})
			continue
		}
		plain[name] = value
	}
	return plain, refs
}

func parameterName(arn string) string {
	if _, name, ok := strings.Cut(arn, ":parameter/"); ok {
		return name
	}
	return arn
}

// roleARN expands a bare execution role name into its ARN. Full ARNs pass
// through.
func roleARN(account, serviceAccount string) string {
	if strings.HasPrefix(serviceAccount, "arn:") {
		return serviceAccount
	}
	return fmt.Sprintf("arn:aws:iam::%s:role/%s", account, serviceAccount)
}

// shortRoleName inverts roleARN for same-account roles.
func shortRoleName(account, role string) string {
	return strings.TrimPrefix(role, fmt.Sprintf("arn:aws:iam::%s:role/", account))
}

func statementID(topic string) string {
	return fmt.Sprintf("%s-sns-%s", constants.ProjectName, topic)
}

// parseArchiveRef splits an s3://bucket/key source reference.
func parseArchiveRef(ref string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(ref, "s3://")
	if ok {
		bucket, key, ok = strings.Cut(rest, "/")
	}
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("source %q is not an s3://bucket/key archive", ref)
	}
	return bucket, key, nil
}
