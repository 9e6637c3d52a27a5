package reconcile

import (
	"fmt"
	"slices"
	"strings"

	"github.com/slipway/slipway/internal/constants"
)

// Op is the kind of step an Action describes.
type Op string

const (
	// OpNone records a resource already in the desired state.
	OpNone Op = "none"
	// OpEnable records an API enablement.
	OpEnable Op = "enable"
	// OpGrant records an IAM grant.
	OpGrant Op = "grant"
	// OpCreate records a topic or artifact creation.
	OpCreate Op = "create"
	// OpUpdate records an in-place artifact update.
	OpUpdate Op = "update"
)

// Action is one reconciliation step. In a dry run it is the step that would
// have been applied; otherwise it is the step that was applied.
type Action struct {
	Stage    constants.Stage `yaml:"stage"`
	Resource string          `yaml:"resource"`
	Op       Op              `yaml:"op"`
	// Detail carries the provider identifier of a pushed artifact (service
	// URL or function ARN).
	Detail string `yaml:"detail,omitempty"`
}

// Plan is the record of one reconcile run.
type Plan struct {
	Environment string   `yaml:"environment"`
	Project     string   `yaml:"project"`
	DryRun      bool     `yaml:"dry_run"`
	Actions     []Action `yaml:"actions"`
}

// Mutations counts the actions that change (or, in a dry run, would change)
// the target project.
func (p *Plan) Mutations() int {
	n := 0
	for _, a := range p.Actions {
		if a.Op != OpNone {
			n++
		}
	}
	return n
}

// Rows renders the actions as table rows in stage order.
func (p *Plan) Rows() [][]string {
	rows := make([][]string, 0, len(p.Actions))
	for _, a := range p.Actions {
		op := string(a.Op)
		if p.DryRun && a.Op != OpNone {
			op = fmt.Sprintf("would %s", a.Op)
		}
		rows = append(rows, []string{string(a.Stage), a.Resource, op})
	}
	return rows
}

var stageOrder = map[constants.Stage]int{
	constants.StageConfig:  0,
	constants.StageSecrets: 1,
	constants.StageAPIs:    2,
	constants.StageIAM:     3,
	constants.StageEvents:  4,
	constants.StageDeploy:  5,
}

// sort fixes the display order: pipeline stage, then resource. Actions inside
// a stage are appended concurrently, so their arrival order is arbitrary.
func (p *Plan) sort() {
	slices.SortFunc(p.Actions, func(a, b Action) int {
		if c := stageOrder[a.Stage] - stageOrder[b.Stage]; c != 0 {
			return c
		}
		if c := strings.Compare(a.Resource, b.Resource); c != 0 {
			return c
		}
		return strings.Compare(string(a.Op), string(b.Op))
	})
}
