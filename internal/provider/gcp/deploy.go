package gcp

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"google.golang.org/api/cloudfunctions/v2"
	"google.golang.org/api/run/v2"

	"github.com/slipway/slipway/internal/constants"
	"github.com/slipway/slipway/internal/manifest"
	"github.com/slipway/slipway/internal/provider"
	"github.com/slipway/slipway/internal/secrets"
	"github.com/slipway/slipway/internal/vars"
)

// defaultDeployer pushes services to Cloud Run and functions to Cloud
// Functions v2. Both read deployed state back into the shared normal form so
// the reconciler can diff it against the manifest.
type defaultDeployer struct {
	run       *run.Service
	functions *cloudfunctions.Service
	region    string
}

const pubsubPublishEventType = "google.cloud.pubsub.topic.v1.messagePublished"

func (c *defaultDeployer) parent(project string) string {
	return fmt.Sprintf("projects/%s/locations/%s", project, c.region)
}

func (c *defaultDeployer) serviceName(project, service string) string {
	return fmt.Sprintf("projects/%s/locations/%s/services/%s", project, c.region, service)
}

func (c *defaultDeployer) functionName(project, function string) string {
	return fmt.Sprintf("projects/%s/locations/%s/functions/%s", project, c.region, function)
}

func (c *defaultDeployer) CurrentArtifact(
	ctx context.Context,
	project, name string,
	kind constants.ArtifactKind,
) (*provider.ArtifactState, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.ProviderCallTimeout)
	defer cancel()

	if kind == constants.KindFunction {
		fn, err := c.functions.Projects.Locations.Functions.Get(c.functionName(project, name)).
			Context(ctx).
			Do()
		if isNotFound(err) {
			return nil, nil
		}
		if err != nil {
			return nil, wrapError("get cloud function", err)
		}
		return functionState(project, name, fn), nil
	}

	svc, err := c.run.Projects.Locations.Services.Get(c.serviceName(project, name)).Context(ctx).Do()
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapError("get cloud run service", err)
	}
	return runServiceState(project, name, svc), nil
}

func (c *defaultDeployer) CreateArtifact(
	ctx context.Context,
	project string,
	desired *provider.ArtifactState,
) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.OperationTimeout)
	defer cancel()

	if desired.Kind == constants.KindFunction {
		return c.createFunction(ctx, project, desired)
	}
	return c.createService(ctx, project, desired)
}

func (c *defaultDeployer) UpdateArtifact(
	ctx context.Context,
	project string,
	desired *provider.ArtifactState,
) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.OperationTimeout)
	defer cancel()

	if desired.Kind == constants.KindFunction {
		return c.updateFunction(ctx, project, desired)
	}
	return c.updateService(ctx, project, desired)
}

func (c *defaultDeployer) createService(ctx context.Context, project string, desired *provider.ArtifactState) (string, error) {
	op, err := c.run.Projects.Locations.Services.Create(c.parent(project), c.runServiceSpec(project, desired)).
		ServiceId(desired.Name).
		Context(ctx).
		Do()
	if isAlreadyExists(err) {
		// Lost a create race: converge by updating instead.
		return c.updateService(ctx, project, desired)
	}
	if err != nil {
		return "", wrapError("create cloud run service", err)
	}

	if waitErr := c.waitForRunOperation(ctx, op.Name); waitErr != nil {
		return "", wrapError("wait for cloud run creation", waitErr)
	}
	return c.serviceURI(ctx, project, desired.Name)
}

func (c *defaultDeployer) updateService(ctx context.Context, project string, desired *provider.ArtifactState) (string, error) {
	op, err := c.run.Projects.Locations.Services.Patch(
		c.serviceName(project, desired.Name),
		c.runServiceSpec(project, desired),
	).UpdateMask("template,labels,customAudiences").Context(ctx).Do()
	if err != nil {
		return "", wrapError("update cloud run service", err)
	}

	if waitErr := c.waitForRunOperation(ctx, op.Name); waitErr != nil {
		return "", wrapError("wait for cloud run update", waitErr)
	}
	return c.serviceURI(ctx, project, desired.Name)
}

func (c *defaultDeployer) serviceURI(ctx context.Context, project, name string) (string, error) {
	svc, err := c.run.Projects.Locations.Services.Get(c.serviceName(project, name)).Context(ctx).Do()
	if err != nil {
		return "", wrapError("get cloud run service uri", err)
	}
	return svc.Uri, nil
}

func (c *defaultDeployer) createFunction(ctx context.Context, project string, desired *provider.ArtifactState) (string, error) {
	fn, err := c.functionSpec(project, desired)
	if err != nil {
		return "", err
	}

	op, err := c.functions.Projects.Locations.Functions.Create(c.parent(project), fn).
		FunctionId(desired.Name).
		Context(ctx).
		Do()
	if isAlreadyExists(err) {
		return c.updateFunction(ctx, project, desired)
	}
	if err != nil {
		return "", wrapError("create cloud function", err)
	}

	if waitErr := c.waitForFunctionOperation(ctx, op.Name); waitErr != nil {
		return "", wrapError("wait for function creation", waitErr)
	}
	return c.functionName(project, desired.Name), nil
}

func (c *defaultDeployer) updateFunction(ctx context.Context, project string, desired *provider.ArtifactState) (string, error) {
	fn, err := c.functionSpec(project, desired)
	if err != nil {
		return "", err
	}

	op, err := c.functions.Projects.Locations.Functions.Patch(c.functionName(project, desired.Name), fn).
		UpdateMask("buildConfig,serviceConfig,eventTrigger,labels").
		Context(ctx).
		Do()
	if err != nil {
		return "", wrapError("update cloud function", err)
	}

	if waitErr := c.waitForFunctionOperation(ctx, op.Name); waitErr != nil {
		return "", wrapError("wait for function update", waitErr)
	}
	return c.functionName(project, desired.Name), nil
}

func (c *defaultDeployer) runServiceSpec(project string, desired *provider.ArtifactState) *run.GoogleCloudRunV2Service {
	return &run.GoogleCloudRunV2Service{
		Name:            c.serviceName(project, desired.Name),
		Labels:          map[string]string{constants.ManagedByLabel: constants.ProjectName},
		CustomAudiences: desired.Audiences,
		Template: &run.GoogleCloudRunV2RevisionTemplate{
			Containers: []*run.GoogleCloudRunV2Container{
				{
					Image: desired.Image,
					Env:   toRunEnvVars(desired.Env, desired.Secrets),
					Resources: &run.GoogleCloudRunV2ResourceRequirements{
						Limits: map[string]string{"memory": formatMemory(desired.MemoryMiB)},
					},
				},
			},
			ServiceAccount: accountEmail(project, desired.ServiceAccount),
			Timeout:        fmt.Sprintf("%ds", desired.TimeoutSeconds),
		},
	}
}

func (c *defaultDeployer) functionSpec(project string, desired *provider.ArtifactState) (*cloudfunctions.Function, error) {
	bucket, object, err := parseArchiveRef(desired.Source)
	if err != nil {
		return nil, err
	}

	fn := &cloudfunctions.Function{
		Name:   c.functionName(project, desired.Name),
		Labels: map[string]string{constants.ManagedByLabel: constants.ProjectName},
		BuildConfig: &cloudfunctions.BuildConfig{
			Runtime:    desired.Runtime,
			EntryPoint: desired.EntryPoint,
			Source: &cloudfunctions.Source{
				StorageSource: &cloudfunctions.StorageSource{Bucket: bucket, Object: object},
			},
		},
		ServiceConfig: &cloudfunctions.ServiceConfig{
			AvailableMemory:            formatMemory(desired.MemoryMiB),
			TimeoutSeconds:             desired.TimeoutSeconds,
			EnvironmentVariables:       desired.Env,
			SecretEnvironmentVariables: toFunctionSecretEnvVars(project, desired.Secrets),
			ServiceAccountEmail:        accountEmail(project, desired.ServiceAccount),
		},
	}
	if desired.TriggerTopic != "" {
		fn.EventTrigger = &cloudfunctions.EventTrigger{
			EventType:   pubsubPublishEventType,
			PubsubTopic: topicName(project, desired.TriggerTopic),
		}
	}
	return fn, nil
}

func (c *defaultDeployer) waitForRunOperation(ctx context.Context, name string) error {
	for {
		op, err := c.run.Projects.Locations.Operations.Get(name).Context(ctx).Do()
		if err != nil {
			return wrapError("poll cloud run operation", err)
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

func (c *defaultDeployer) waitForFunctionOperation(ctx context.Context, name string) error {
	for {
		op, err := c.functions.Projects.Locations.Operations.Get(name).Context(ctx).Do()
		if err != nil {
			return wrapError("poll cloud functions operation", err)
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

// runServiceState reads a deployed Cloud Run service back into normal form.
func runServiceState(project, name string, svc *run.GoogleCloudRunV2Service) *provider.ArtifactState {
	state := &provider.ArtifactState{
		Name:      name,
		Kind:      constants.KindService,
		Env:       vars.Set{},
		Audiences: slices.Clone(svc.CustomAudiences),
	}
	if tmpl := svc.Template; tmpl != nil {
		state.ServiceAccount = shortAccountName(project, tmpl.ServiceAccount)
		state.TimeoutSeconds = timeoutSeconds(tmpl.Timeout)
		if len(tmpl.Containers) > 0 {
			container := tmpl.Containers[0]
			state.Image = container.Image
			state.Env, state.Secrets = fromRunEnvVars(container.Env)
			if container.Resources != nil {
				state.MemoryMiB = memoryMiB(container.Resources.Limits["memory"])
			}
		}
	}
	state.Normalize()
	return state
}

// functionState reads a deployed function back into normal form.
func functionState(project, name string, fn *cloudfunctions.Function) *provider.ArtifactState {
	state := &provider.ArtifactState{
		Name: name,
		Kind: constants.KindFunction,
		Env:  vars.Set{},
	}
	if bc := fn.BuildConfig; bc != nil {
		state.Runtime = bc.Runtime
		state.EntryPoint = bc.EntryPoint
		if bc.Source != nil && bc.Source.StorageSource != nil {
			src := bc.Source.StorageSource
			state.Source = fmt.Sprintf("gs://%s/%s", src.Bucket, src.Object)
		}
	}
	if sc := fn.ServiceConfig; sc != nil {
		state.ServiceAccount = shortAccountName(project, sc.ServiceAccountEmail)
		state.TimeoutSeconds = sc.TimeoutSeconds
		state.MemoryMiB = memoryMiB(sc.AvailableMemory)
		for k, v := range sc.EnvironmentVariables {
			state.Env[k] = v
		}
		for _, sev := range sc.SecretEnvironmentVariables {
			state.Secrets = append(state.Secrets, secrets.ResolvedRef{
				Secret:  sev.Secret,
				Env:     sev.Key,
				Ref:     fmt.Sprintf("projects/%s/secrets/%s", sev.ProjectId, sev.Secret),
				Version: sev.Version,
			})
		}
	}
	if fn.EventTrigger != nil {
		state.TriggerTopic = lastSegment(fn.EventTrigger.PubsubTopic)
	}
	state.Normalize()
	return state
}

func toRunEnvVars(env vars.Set, refs []secrets.ResolvedRef) []*run.GoogleCloudRunV2EnvVar {
	result := make([]*run.GoogleCloudRunV2EnvVar, 0, len(env)+len(refs))
	for _, name := range env.Names() {
		result = append(result, &run.GoogleCloudRunV2EnvVar{Name: name, Value: env[name]})
	}
	for _, ref := range refs {
		result = append(result, &run.GoogleCloudRunV2EnvVar{
			Name: ref.Env,
			ValueSource: &run.GoogleCloudRunV2EnvVarSource{
				SecretKeyRef: &run.GoogleCloudRunV2SecretKeySelector{
					Secret:  ref.Secret,
					Version: ref.Version,
				},
			},
		})
	}
	return result
}

func fromRunEnvVars(envVars []*run.GoogleCloudRunV2EnvVar) (vars.Set, []secrets.ResolvedRef) {
	env := vars.Set{}
	var refs []secrets.ResolvedRef
	for _, e := range envVars {
		if e.ValueSource != nil && e.ValueSource.SecretKeyRef != nil {
			key := e.ValueSource.SecretKeyRef
			refs = append(refs, secrets.ResolvedRef{
				Secret:  lastSegment(key.Secret),
				Env:     e.Name,
				Ref:     key.Secret,
				Version: key.Version,
			})
			continue
		}
		env[e.Name] = e.Value
	}
	return env, refs
}

func toFunctionSecretEnvVars(project string, refs []secrets.ResolvedRef) []*cloudfunctions.SecretEnvVar {
	result := make([]*cloudfunctions.SecretEnvVar, 0, len(refs))
	for _, ref := range refs {
		result = append(result, &cloudfunctions.SecretEnvVar{
			Key:       ref.Env,
			ProjectId: project,
			Secret:    ref.Secret,
			Version:   ref.Version,
		})
	}
	return result
}

// accountEmail expands a short account name into a full email. Empty stays
// empty so the provider's default account applies.
func accountEmail(project, serviceAccount string) string {
	if serviceAccount == "" || strings.Contains(serviceAccount, "@") {
		return serviceAccount
	}
	return fmt.Sprintf("%s@%s.iam.gserviceaccount.com", serviceAccount, project)
}

// shortAccountName inverts accountEmail. The provider-assigned default
// compute account reads back as empty so unmanaged accounts never drift.
func shortAccountName(project, email string) string {
	if strings.HasSuffix(email, "-compute@developer.gserviceaccount.com") {
		return ""
	}
	return strings.TrimSuffix(email, "@"+project+".iam.gserviceaccount.com")
}

func formatMemory(mib int64) string {
	return fmt.Sprintf("%dMi", mib)
}

func memoryMiB(limit string) int64 {
	mib, err := manifest.ParseMemoryMiB(limit)
	if err != nil {
		return 0
	}
	return mib
}

func timeoutSeconds(timeout string) int64 {
	d, err := time.ParseDuration(timeout)
	if err != nil {
		return 0
	}
	return int64(d / time.Second)
}

func lastSegment(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

// parseArchiveRef splits a gs://bucket/object source reference.
func parseArchiveRef(ref string) (bucket, object string, err error) {
	rest, ok := strings.CutPrefix(ref, "gs://")
	if ok {
		bucket, object, ok = strings.Cut(rest, "/")
	}
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("source %q is not a gs://bucket/object archive", ref)
	}
	return bucket, object, nil
}
