// Package orchestrator abstracts the coordination core's single
// collaborator: the Kubernetes batch-job/pod orchestrator that Job
// Admission submits to and the Babysitter reconciles against.
package orchestrator

import "context"

// PodInfo is the subset of a running pod's identity the Babysitter needs
// to cross-reference against Datum.pod_name (Pass 2, zombie detection).
type PodInfo struct {
	Name      string
	Namespace string
	Phase     string
}

// BatchJobInfo is the subset of a submitted batch job's identity the
// Babysitter needs to detect vanished jobs (Pass 1).
type BatchJobInfo struct {
	Name      string
	Namespace string
}

// ResourceRequests are the per-worker-pod resource requests rendered into
// the batch job manifest.
type ResourceRequests struct {
	Memory string
	CPU    string
	GPU    *int
}

// SecretMount mounts a Kubernetes Secret as a volume on the worker container.
type SecretMount struct {
	Name      string
	MountPath string
}

// SecretEnv exposes one key of a Kubernetes Secret as an environment
// variable on the worker container.
type SecretEnv struct {
	Name     string
	Key      string
	EnvVar   string
	Optional bool
}

// Secret is the tagged union a transform may request: either a Mount or an
// Env, distinguished by which of its two pointer fields is set.
type Secret struct {
	Mount *SecretMount
	Env   *SecretEnv
}

// BatchJobSpec describes the batch job Job Admission submits for one
// admitted pipeline run: ParallelismTarget worker pods running
// concurrently, each invoking the pipeline's command against a worker
// image that calls back into the coordination core's REST facade to
// reserve datums one at a time and register/commit outputs.
type BatchJobSpec struct {
	Name              string
	Namespace         string
	Image             string
	Command           []string
	Args              []string
	ParallelismTarget int
	Env               map[string]string
	ResourceRequests  ResourceRequests
	Secrets           []Secret
	NodeSelector      map[string]string
	ServiceAccount    string
	// TTLSecondsAfterFinished mirrors the pipeline's job_timeout, set on the
	// rendered batch job's spec.ttlSecondsAfterFinished. Nil means no TTL.
	TTLSecondsAfterFinished *int32
}

// Orchestrator is the coordination core's collaborator contract against
// the worker fleet's orchestration layer: list_pods, list_batch_jobs,
// submit_batch_job, delete_batch_job.
type Orchestrator interface {
	// ListPods returns every pod the orchestrator currently reports as
	// running, across all Falconeri-managed namespaces.
	ListPods(ctx context.Context) ([]PodInfo, error)

	// ListBatchJobs returns every batch job the orchestrator currently
	// tracks, across all Falconeri-managed namespaces.
	ListBatchJobs(ctx context.Context) ([]BatchJobInfo, error)

	// SubmitBatchJob creates the batch job for one admitted pipeline run.
	SubmitBatchJob(ctx context.Context, spec BatchJobSpec) error

	// DeleteBatchJob removes a batch job and its pods. No code path in the
	// coordination core calls it; it completes the collaborator contract.
	DeleteBatchJob(ctx context.Context, namespace, name string) error
}
