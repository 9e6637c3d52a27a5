// Package testutil provides shared testing utilities: error assertions and
// canonical manifest fixtures.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// ManifestYAML is a small but complete manifest: both artifact kinds, a
// secret, a trigger, and two environments with an image override.
const ManifestYAML = `
version: 1
apis:
  - run.googleapis.com
  - pubsub.googleapis.com
variables:
  LOG_LEVEL: INFO
environments:
  development:
    project: veo-dev
    region: us-central1
    variables:
      ENVIRONMENT: development
  production:
    project: veo-prod
    region: us-central1
    variables:
      ENVIRONMENT: production
    images:
      backend: gcr.io/veo/backend:v12
services:
  - name: backend
    image: gcr.io/veo/backend:latest
    service_account: veo-backend
    roles:
      - roles/pubsub.publisher
    publishes:
      - veo-jobs
    secrets:
      - secret: API_TOKEN
    memory: 512Mi
    timeout: 300s
  - name: executor
    kind: function
    runtime: python312
    entry_point: execute
    source: gs://veo-artifacts/executor.zip
    service_account: veo-executor
    trigger:
      topic: veo-jobs
`

// WriteManifest writes contents to a slipway.yaml under dir and returns its
// path.
func WriteManifest(t *testing.T, dir, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "slipway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}
