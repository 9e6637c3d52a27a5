// Package manifest defines the deployment manifest model and its loading,
// validation, and environment-resolution logic.
package manifest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/slipway/slipway/internal/constants"
	"github.com/slipway/slipway/internal/vars"
)

// Manifest is the top-level document loaded from slipway.yaml. One manifest
// describes every environment and every deployable service of a project.
//
// Variable names, secret names, and environment keys are case-sensitive, so
// the manifest is decoded with yaml.v3 rather than viper (viper lowercases
// every key in the tree).
type Manifest struct {
	Version       int                    `yaml:"version"`
	APIs          []string               `yaml:"apis"`
	Variables     vars.Set               `yaml:"variables"`
	VariablesFile string                 `yaml:"variables_file"`
	Environments  map[string]Environment `yaml:"environments" validate:"required,min=1,dive"`
	Services      []ServiceSpec          `yaml:"services" validate:"required,min=1,dive"`
}

// Environment is a named deployment target. Immutable once loaded.
type Environment struct {
	// Name is filled from the map key during loading.
	Name      string             `yaml:"-"`
	Provider  constants.Provider `yaml:"provider"`
	Project   string             `yaml:"project" validate:"required"`
	Region    string             `yaml:"region" validate:"required"`
	Variables vars.Set           `yaml:"variables"`
	// Images overrides a service's artifact per environment, keyed by service
	// name. This is the supported way to vary one artifact between otherwise
	// identical environments.
	Images map[string]string `yaml:"images"`
}

// ServiceSpec describes one deployable unit.
type ServiceSpec struct {
	Name           string                 `yaml:"name" validate:"required"`
	Kind           constants.ArtifactKind `yaml:"kind"`
	Image          string                 `yaml:"image"`
	Runtime        string                 `yaml:"runtime"`
	EntryPoint     string                 `yaml:"entry_point"`
	Source         string                 `yaml:"source"`
	ServiceAccount string                 `yaml:"service_account"`
	Audiences      []string               `yaml:"audiences"`
	Roles          []string               `yaml:"roles"`
	Secrets        []SecretMount          `yaml:"secrets" validate:"dive"`
	Publishes      []string               `yaml:"publishes"`
	Trigger        *TriggerSpec           `yaml:"trigger,omitempty"`
	Memory         string                 `yaml:"memory"`
	Timeout        string                 `yaml:"timeout"`
}

// SecretMount declares one secret-store entry injected into a service as an
// environment variable. Env defaults to the secret name.
type SecretMount struct {
	Secret string `yaml:"secret" validate:"required"`
	Env    string `yaml:"env"`
}

// TriggerSpec subscribes a function to an event topic.
type TriggerSpec struct {
	Topic string `yaml:"topic" validate:"required"`
}

// ImageFor returns the artifact reference for the service in this
// environment, preferring the per-environment override.
func (e *Environment) ImageFor(svc *ServiceSpec) string {
	if override, ok := e.Images[svc.Name]; ok && override != "" {
		return override
	}
	return svc.Image
}

// MemoryMiB parses the service's declared memory limit ("512Mi", "1Gi", or a
// bare MiB count) into mebibytes. Zero means provider default.
func (s *ServiceSpec) MemoryMiB() (int64, error) {
	return ParseMemoryMiB(s.Memory)
}

// TimeoutSeconds parses the declared request timeout ("300s", "5m") into
// whole seconds. Zero means provider default.
func (s *ServiceSpec) TimeoutSeconds() (int64, error) {
	t := strings.TrimSpace(s.Timeout)
	if t == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(t)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid timeout %q: expected forms like 300s or 5m", s.Timeout)
	}
	return int64(d / time.Second), nil
}

const mebisPerGibi = 1024

// ParseMemoryMiB parses a memory quantity ("512Mi", "1Gi", bare MiB count)
// into mebibytes. Providers use it to read deployed limits back into the
// manifest's unit.
func ParseMemoryMiB(memory string) (int64, error) {
	m := strings.TrimSpace(memory)
	if m == "" {
		return 0, nil
	}

	unit := int64(1)
	switch {
	case strings.HasSuffix(m, "Gi"):
		unit = mebisPerGibi
		m = strings.TrimSuffix(m, "Gi")
	case strings.HasSuffix(m, "Mi"):
		m = strings.TrimSuffix(m, "Mi")
	}

	n, err := strconv.ParseInt(strings.TrimSpace(m), 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid memory %q: expected forms like 512Mi or 1Gi", memory)
	}
	return n * unit, nil
}
