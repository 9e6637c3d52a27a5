package manifest

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/slipway/slipway/internal/constants"
	apperrors "github.com/slipway/slipway/internal/errors"
	"github.com/slipway/slipway/internal/vars"
)

var validate = validator.New()

// envVarNameRe matches names acceptable as process environment variables.
var envVarNameRe = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)

// Load reads and validates the manifest at path. All failures are config
// errors naming the offending field; nothing here touches the cloud.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewConfigError(path, "could not read manifest", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, apperrors.NewConfigError(path, "could not decode manifest", err)
	}

	applyDefaults(&m)

	if m.VariablesFile != "" {
		if err := loadVariablesFile(&m, filepath.Dir(path)); err != nil {
			return nil, err
		}
	}

	if err := validateManifest(&m); err != nil {
		return nil, err
	}

	return &m, nil
}

func applyDefaults(m *Manifest) {
	for name, env := range m.Environments {
		env.Name = name
		if env.Provider == "" {
			env.Provider = constants.GCP
		}
		m.Environments[name] = env
	}

	for i := range m.Services {
		svc := &m.Services[i]
		if svc.Kind == "" {
			svc.Kind = constants.KindService
		}
		// Explicit limits keep deployed state convergent: a provider fills in
		// its own defaults, and an unset manifest value would read back as
		// drift on every run.
		if svc.Memory == "" {
			svc.Memory = constants.DefaultServiceMemory
		}
		if svc.Timeout == "" {
			svc.Timeout = constants.DefaultServiceTimeout
		}
		for j := range svc.Secrets {
			if svc.Secrets[j].Env == "" {
				svc.Secrets[j].Env = svc.Secrets[j].Secret
			}
		}
	}
}

// loadVariablesFile reads the declared dotenv file into the common variable
// layer. Inline manifest variables win on collision; nothing is ever read
// from or written to the process environment.
func loadVariablesFile(m *Manifest, baseDir string) error {
	path := m.VariablesFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}

	fileVars, err := godotenv.Read(path)
	if err != nil {
		return apperrors.NewConfigError("variables_file", "could not read variables file", err)
	}

	m.Variables = vars.Resolve(vars.Set(fileVars), m.Variables)
	return nil
}

//nolint:gocyclo // validation is a flat list of field checks
func validateManifest(m *Manifest) error {
	if m.Version != constants.ManifestVersion {
		return apperrors.NewConfigError("version",
			fmt.Sprintf("unsupported manifest version %d (want %d)", m.Version, constants.ManifestVersion), nil)
	}

	if err := validate.Struct(m); err != nil {
		return apperrors.NewConfigError(firstValidationField(err), "manifest validation failed", err)
	}

	for name, env := range m.Environments {
		if !env.Provider.Valid() {
			return apperrors.NewConfigError(
				fmt.Sprintf("environments.%s.provider", name),
				fmt.Sprintf("unknown provider %q (want gcp or aws)", env.Provider), nil)
		}
		for svcName := range env.Images {
			if !hasService(m.Services, svcName) {
				return apperrors.NewConfigError(
					fmt.Sprintf("environments.%s.images.%s", name, svcName),
					"image override references an undeclared service", nil)
			}
		}
		if err := checkVariableNames(fmt.Sprintf("environments.%s.variables", name), env.Variables); err != nil {
			return err
		}
	}

	if err := checkVariableNames("variables", m.Variables); err != nil {
		return err
	}

	seen := make(map[string]bool, len(m.Services))
	for i := range m.Services {
		if err := validateService(m, &m.Services[i], seen); err != nil {
			return err
		}
	}

	return nil
}

//nolint:gocyclo // validation is a flat list of field checks
func validateService(m *Manifest, svc *ServiceSpec, seen map[string]bool) error {
	field := func(f string) string { return fmt.Sprintf("services.%s.%s", svc.Name, f) }

	if seen[svc.Name] {
		return apperrors.NewConfigError("services."+svc.Name, "duplicate service name", nil)
	}
	seen[svc.Name] = true

	switch svc.Kind {
	case constants.KindService:
		if svc.Image == "" && !imageOverriddenEverywhere(m, svc.Name) {
			return apperrors.NewConfigError(field("image"),
				"service needs an image (or an override in every environment)", nil)
		}
		if svc.Runtime != "" || svc.EntryPoint != "" || svc.Source != "" {
			return apperrors.NewConfigError(field("runtime"),
				"runtime, entry_point, and source apply only to kind: function", nil)
		}
		if svc.Trigger != nil {
			return apperrors.NewConfigError(field("trigger"),
				"event triggers apply only to kind: function", nil)
		}
	case constants.KindFunction:
		if svc.Runtime == "" || svc.EntryPoint == "" || svc.Source == "" {
			return apperrors.NewConfigError(field("runtime"),
				"functions need runtime, entry_point, and source", nil)
		}
		if svc.Image != "" {
			return apperrors.NewConfigError(field("image"),
				"image applies only to kind: service", nil)
		}
		if len(svc.Audiences) > 0 {
			return apperrors.NewConfigError(field("audiences"),
				"custom audiences apply only to kind: service", nil)
		}
	default:
		return apperrors.NewConfigError(field("kind"),
			fmt.Sprintf("unknown kind %q (want service or function)", svc.Kind), nil)
	}

	if len(svc.Roles) > 0 && svc.ServiceAccount == "" {
		return apperrors.NewConfigError(field("roles"),
			"roles need a service_account to bind to", nil)
	}

	// Short names only: providers expand them, and a fully qualified account
	// would read back shortened and look like drift on every run.
	if strings.ContainsAny(svc.ServiceAccount, "@:") {
		return apperrors.NewConfigError(field("service_account"),
			fmt.Sprintf("service account %q must be a short name, not an email or arn", svc.ServiceAccount), nil)
	}

	for _, mount := range svc.Secrets {
		if !envVarNameRe.MatchString(mount.Env) {
			return apperrors.NewConfigError(field("secrets"),
				fmt.Sprintf("secret env name %q is not a valid environment variable name", mount.Env), nil)
		}
	}

	if _, err := svc.MemoryMiB(); err != nil {
		return apperrors.NewConfigError(field("memory"), "invalid memory limit", err)
	}
	if _, err := svc.TimeoutSeconds(); err != nil {
		return apperrors.NewConfigError(field("timeout"), "invalid timeout", err)
	}

	return nil
}

func checkVariableNames(field string, set vars.Set) error {
	for _, name := range set.Names() {
		if !envVarNameRe.MatchString(name) {
			return apperrors.NewConfigError(field,
				fmt.Sprintf("variable %q is not a valid environment variable name", name), nil)
		}
	}
	return nil
}

func imageOverriddenEverywhere(m *Manifest, svcName string) bool {
	for _, env := range m.Environments {
		if env.Images[svcName] == "" {
			return false
		}
	}
	return true
}

func hasService(services []ServiceSpec, name string) bool {
	for i := range services {
		if services[i].Name == name {
			return true
		}
	}
	return false
}

// firstValidationField extracts a field path from a validator error so config
// failures name the offending field.
func firstValidationField(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return strings.TrimPrefix(verrs[0].Namespace(), "Manifest.")
	}
	return ""
}

// WarnNearDuplicates logs a warning for every pair of environments whose
// declarations differ only in name, project, or region. Two such environments
// are usually accidental copies rather than an intentional split.
func (m *Manifest) WarnNearDuplicates(log *slog.Logger) {
	names := slices.Sorted(maps.Keys(m.Environments))

	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			a, b := m.Environments[names[i]], m.Environments[names[j]]
			if a.Provider == b.Provider && a.Variables.Equal(b.Variables) && maps.Equal(a.Images, b.Images) {
				log.Warn("environments differ only in name, project, or region",
					"environments", names[i]+","+names[j])
			}
		}
	}
}
