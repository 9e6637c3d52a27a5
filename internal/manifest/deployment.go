package manifest

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/slipway/slipway/internal/constants"
	apperrors "github.com/slipway/slipway/internal/errors"
	"github.com/slipway/slipway/internal/vars"
)

// Deployment is the fully resolved view of one environment: merged variables,
// services with per-environment image overrides applied, and the derived API,
// topic, and grant sets. Constructed once per invocation, applied once,
// discarded.
type Deployment struct {
	Environment Environment
	Variables   vars.Set
	Services    []ServiceSpec
	APIs        []string
	Topics      []string
	Grants      []Grant
}

// Grant is a derived (service account, role) pair the reconciler must ensure
// on the target project.
type Grant struct {
	ServiceAccount string
	Role           string
}

// ResolveEnvironment builds the Deployment for the named environment. Unknown
// names fail with a config error listing the declared environments.
func (m *Manifest) ResolveEnvironment(name string) (*Deployment, error) {
	env, ok := m.Environments[name]
	if !ok {
		declared := slices.Sorted(maps.Keys(m.Environments))
		return nil, apperrors.NewConfigError("environments."+name,
			fmt.Sprintf("unknown environment (declared: %s)", strings.Join(declared, ", ")), nil)
	}

	services := make([]ServiceSpec, len(m.Services))
	copy(services, m.Services)
	for i := range services {
		services[i].Image = env.ImageFor(&m.Services[i])
		if err := checkSourceScheme(env.Provider, &services[i]); err != nil {
			return nil, err
		}
		if err := checkServiceAccount(env.Provider, &services[i]); err != nil {
			return nil, err
		}
	}

	return &Deployment{
		Environment: env,
		Variables:   vars.Resolve(m.Variables, env.Variables),
		Services:    services,
		APIs:        uniqueSorted(m.APIs),
		Topics:      deriveTopics(services),
		Grants:      deriveGrants(services),
	}, nil
}

// deriveTopics returns the sorted union of every trigger topic and every
// published topic across the services.
func deriveTopics(services []ServiceSpec) []string {
	var topics []string
	for i := range services {
		topics = append(topics, services[i].Publishes...)
		if services[i].Trigger != nil {
			topics = append(topics, services[i].Trigger.Topic)
		}
	}
	return uniqueSorted(topics)
}

// deriveGrants flattens each service's roles into (service account, role)
// pairs, deduplicated and sorted for deterministic apply order.
func deriveGrants(services []ServiceSpec) []Grant {
	seen := make(map[Grant]bool)
	var grants []Grant
	for i := range services {
		svc := &services[i]
		for _, role := range svc.Roles {
			g := Grant{ServiceAccount: svc.ServiceAccount, Role: role}
			if !seen[g] {
				seen[g] = true
				grants = append(grants, g)
			}
		}
	}
	slices.SortFunc(grants, func(a, b Grant) int {
		if c := strings.Compare(a.ServiceAccount, b.ServiceAccount); c != 0 {
			return c
		}
		return strings.Compare(a.Role, b.Role)
	})
	return grants
}

// checkSourceScheme verifies a function's pre-published source archive lives
// in the store the environment's provider can deploy from.
func checkSourceScheme(p constants.Provider, svc *ServiceSpec) error {
	if svc.Kind != constants.KindFunction {
		return nil
	}
	want := "gs://"
	if p == constants.AWS {
		want = "s3://"
	}
	if !strings.HasPrefix(svc.Source, want) {
		return apperrors.NewConfigError(
			fmt.Sprintf("services.%s.source", svc.Name),
			fmt.Sprintf("source %q is not deployable on %s (want a %s archive)", svc.Source, p, want), nil)
	}
	return nil
}

// checkServiceAccount requires an execution role on aws, where a function
// cannot run under a provider-assigned default the way gcp services do.
func checkServiceAccount(p constants.Provider, svc *ServiceSpec) error {
	if p != constants.AWS || svc.ServiceAccount != "" {
		return nil
	}
	return apperrors.NewConfigError(
		fmt.Sprintf("services.%s.service_account", svc.Name),
		"service_account is required on aws (the execution role the artifact runs as)", nil)
}

func uniqueSorted(in []string) []string {
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}
