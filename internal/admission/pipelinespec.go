// Package admission resolves a submitted PipelineSpec into a Job: it lists
// input objects, partitions them into Datums by glob, persists the
// admission atomically via internal/store, and submits the rendered batch
// job manifest to the Orchestrator.
package admission

import (
	"encoding/json"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/falconeri/falconeri/internal/apperror"
)

// Secret is the tagged union a transform may request: either a Mount or an
// Env, distinguished by which of its two pointer fields is set.
type Secret struct {
	Mount *SecretMount `json:"mount,omitempty"`
	Env   *SecretEnv   `json:"env,omitempty"`
}

// SecretMount mounts a Kubernetes Secret as a volume.
type SecretMount struct {
	Name      string `json:"name"`
	MountPath string `json:"mount_path"`
}

// SecretEnv exposes one key of a Kubernetes Secret as an environment variable.
type SecretEnv struct {
	Name     string `json:"name"`
	Key      string `json:"key"`
	EnvVar   string `json:"env_var"`
	Optional bool   `json:"optional,omitempty"`
}

// Pipeline names the job.
type Pipeline struct {
	Name string `json:"name"`
}

// Transform describes the worker container.
type Transform struct {
	Image   string            `json:"image"`
	Cmd     []string          `json:"cmd"`
	Env     map[string]string `json:"env,omitempty"`
	Secrets []Secret          `json:"secrets,omitempty"`
}

// InputAtom names the input prefix, an optional repo label, and the glob
// used to partition matched objects into Datums.
type InputAtom struct {
	URI  string `json:"uri"`
	Repo string `json:"repo,omitempty"`
	Glob string `json:"glob"`
}

// Input wraps the atom describing one pipeline's inputs.
type Input struct {
	Atom InputAtom `json:"atom"`
}

// Egress names where a worker should write its outputs.
type Egress struct {
	URI string `json:"uri"`
}

// ParallelismSpec is the subset of parallelism strategies this deployment
// recognises: a constant worker count.
type ParallelismSpec struct {
	Constant int `json:"constant"`
}

// ResourceRequests are the per-worker-pod resource requests rendered into
// the batch job manifest.
type ResourceRequests struct {
	Memory string `json:"memory"`
	CPU    string `json:"cpu"`
	GPU    *int   `json:"gpu,omitempty"`
}

// PipelineSpec is the user-supplied JSON document describing what to run,
// on what inputs, with what resources and retry policy (spec.md §6).
type PipelineSpec struct {
	Pipeline         Pipeline          `json:"pipeline"`
	Transform        Transform         `json:"transform"`
	Input            Input             `json:"input"`
	Egress           Egress            `json:"egress"`
	ParallelismSpec  ParallelismSpec   `json:"parallelism_spec"`
	ResourceRequests ResourceRequests  `json:"resource_requests"`
	NodeSelector     map[string]string `json:"node_selector,omitempty"`
	ServiceAccount   string            `json:"service_account,omitempty"`
	DatumTries       int               `json:"datum_tries,omitempty"`
	JobTimeout       string            `json:"job_timeout,omitempty"`
}

// ParseAndValidate unmarshals a raw PipelineSpec document and validates it.
func ParseAndValidate(raw []byte) (*PipelineSpec, error) {
	var spec PipelineSpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return nil, apperror.Validation(fmt.Sprintf("malformed pipeline spec: %v", err))
	}

	if err := spec.Validate(); err != nil {
		return nil, err
	}

	return &spec, nil
}

// Validate checks that every field spec.md §6 requires is present and
// well-formed. DatumTries defaults to 1 when unset.
func (p *PipelineSpec) Validate() error {
	if p.Pipeline.Name == "" {
		return apperror.Validation("pipeline.name is required")
	}

	if p.Transform.Image == "" {
		return apperror.Validation("transform.image is required")
	}

	if p.Input.Atom.URI == "" {
		return apperror.Validation("input.atom.uri is required")
	}

	if p.Input.Atom.Glob == "" {
		return apperror.Validation("input.atom.glob is required")
	}

	if p.Egress.URI == "" {
		return apperror.Validation("egress.uri is required")
	}

	if p.ParallelismSpec.Constant <= 0 {
		return apperror.Validation("parallelism_spec.constant must be positive")
	}

	if p.ResourceRequests.Memory == "" || p.ResourceRequests.CPU == "" {
		return apperror.Validation("resource_requests.memory and resource_requests.cpu are required")
	}

	if _, err := resource.ParseQuantity(p.ResourceRequests.Memory); err != nil {
		return apperror.Validation(fmt.Sprintf("resource_requests.memory is not a valid quantity: %v", err))
	}

	if _, err := resource.ParseQuantity(p.ResourceRequests.CPU); err != nil {
		return apperror.Validation(fmt.Sprintf("resource_requests.cpu is not a valid quantity: %v", err))
	}

	for _, secret := range p.Transform.Secrets {
		if (secret.Mount == nil) == (secret.Env == nil) {
			return apperror.Validation("transform.secrets entries must set exactly one of mount or env")
		}
	}

	if p.DatumTries <= 0 {
		p.DatumTries = 1
	}

	if p.JobTimeout != "" {
		if _, err := time.ParseDuration(p.JobTimeout); err != nil {
			return apperror.Validation(fmt.Sprintf("job_timeout is not a valid duration: %v", err))
		}
	}

	return nil
}

// JobTimeoutDuration parses JobTimeout, defaulting to zero (no TTL) when unset.
func (p *PipelineSpec) JobTimeoutDuration() time.Duration {
	if p.JobTimeout == "" {
		return 0
	}

	d, _ := time.ParseDuration(p.JobTimeout)
	return d
}
