package admission

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/falconeri/falconeri/internal/objectstorage"
	"github.com/falconeri/falconeri/internal/orchestrator"
	"github.com/falconeri/falconeri/internal/store"
)

// Admitter resolves a PipelineSpec into a running batch Job.
type Admitter struct {
	store        *store.Store
	storage      objectstorage.Storage
	orchestrator orchestrator.Orchestrator
	namespace    string
}

// NewAdmitter builds an Admitter. namespace is the Kubernetes namespace
// every admitted Job is recorded under and its batch job manifest is
// submitted into; a PipelineSpec cannot override it.
func NewAdmitter(s *store.Store, storage objectstorage.Storage, orch orchestrator.Orchestrator, namespace string) *Admitter {
	return &Admitter{store: s, storage: storage, orchestrator: orch, namespace: namespace}
}

// AdmitJob resolves raw's input prefix, partitions matched objects into
// Datums by glob, persists the admission in one transaction, and submits
// the rendered batch job manifest. Object listing happens before any
// database transaction opens (spec.md §5's documented exception).
func (a *Admitter) AdmitJob(ctx context.Context, raw []byte) (*store.Job, error) {
	spec, err := ParseAndValidate(raw)
	if err != nil {
		return nil, err
	}

	objects, err := a.storage.ListPrefix(ctx, spec.Input.Atom.URI)
	if err != nil {
		return nil, fmt.Errorf("list input objects: %w", err)
	}

	groups, err := partitionByGlob(objects, spec.Input.Atom.URI, spec.Input.Atom.Glob)
	if err != nil {
		return nil, err
	}

	name := GenerateJobName(spec.Pipeline.Name)

	datums := make([]store.NewDatumSpec, 0, len(groups))
	for _, group := range groups {
		inputs := make([]store.NewInputFileSpec, 0, len(group))
		for _, uri := range group {
			inputs = append(inputs, store.NewInputFileSpec{URI: uri, LocalPath: localPathFor(uri, spec.Input.Atom.Repo)})
		}

		datums = append(datums, store.NewDatumSpec{
			MaximumAllowedRunCount: spec.DatumTries,
			Inputs:                 inputs,
		})
	}

	job, err := a.store.AdmitJob(ctx, store.CreateJobRequest{
		Name:              name,
		PipelineSpec:      raw,
		Namespace:         a.namespace,
		ParallelismTarget: spec.ParallelismSpec.Constant,
		Datums:            datums,
	})
	if err != nil {
		return nil, err
	}

	if err := a.orchestrator.SubmitBatchJob(ctx, renderBatchJobSpec(job.Name, a.namespace, spec)); err != nil {
		return nil, fmt.Errorf("submit batch job: %w", err)
	}

	return job, nil
}

// partitionByGlob groups objects under prefix into Datums. "/*" (one
// segment) means one datum per matched file; any other glob groups every
// object sharing the same directory match into a single datum.
func partitionByGlob(objects []objectstorage.ObjectInfo, prefix, glob string) ([][]string, error) {
	if len(objects) == 0 {
		return nil, nil
	}

	if glob == "/*" {
		groups := make([][]string, 0, len(objects))
		for _, obj := range objects {
			groups = append(groups, []string{obj.URI})
		}

		sort.Slice(groups, func(i, j int) bool { return groups[i][0] < groups[j][0] })
		return groups, nil
	}

	buckets := make(map[string][]string)
	for _, obj := range objects {
		rel := strings.TrimPrefix(obj.URI, prefix)

		matched, err := path.Match(glob, rel)
		if err != nil {
			return nil, fmt.Errorf("invalid input.atom.glob %q: %w", glob, err)
		}

		key := rel
		if matched {
			key = path.Dir(rel)
		}

		buckets[key] = append(buckets[key], obj.URI)
	}

	keys := make([]string, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	groups := make([][]string, 0, len(keys))
	for _, key := range keys {
		uris := buckets[key]
		sort.Strings(uris)
		groups = append(groups, uris)
	}

	return groups, nil
}

// localPathFor computes the in-container path a worker reads an input file
// from. Per the worker filesystem contract, inputs land under /pfs/<repo>/…
// when the atom names a repo, and directly under /pfs/… otherwise.
func localPathFor(uri, repo string) string {
	_, name := path.Split(uri)
	if repo == "" {
		return path.Join("/pfs", name)
	}

	return path.Join("/pfs", repo, name)
}

func renderBatchJobSpec(name, namespace string, spec *PipelineSpec) orchestrator.BatchJobSpec {
	var ttl *int32
	if d := spec.JobTimeoutDuration(); d > 0 {
		seconds := int32(d.Seconds()) //nolint:gosec // bounded by admission-time duration validation
		ttl = &seconds
	}

	return orchestrator.BatchJobSpec{
		Name:              name,
		Namespace:         namespace,
		Image:             spec.Transform.Image,
		Command:           spec.Transform.Cmd,
		Args:              nil,
		ParallelismTarget: spec.ParallelismSpec.Constant,
		Env:               spec.Transform.Env,
		ResourceRequests: orchestrator.ResourceRequests{
			Memory: spec.ResourceRequests.Memory,
			CPU:    spec.ResourceRequests.CPU,
			GPU:    spec.ResourceRequests.GPU,
		},
		Secrets:                 renderSecrets(spec.Transform.Secrets),
		NodeSelector:            spec.NodeSelector,
		ServiceAccount:          spec.ServiceAccount,
		TTLSecondsAfterFinished: ttl,
	}
}

func renderSecrets(secrets []Secret) []orchestrator.Secret {
	if len(secrets) == 0 {
		return nil
	}

	out := make([]orchestrator.Secret, 0, len(secrets))

	for _, s := range secrets {
		rendered := orchestrator.Secret{}

		if s.Mount != nil {
			rendered.Mount = &orchestrator.SecretMount{Name: s.Mount.Name, MountPath: s.Mount.MountPath}
		}

		if s.Env != nil {
			rendered.Env = &orchestrator.SecretEnv{
				Name:     s.Env.Name,
				Key:      s.Env.Key,
				EnvVar:   s.Env.EnvVar,
				Optional: s.Env.Optional,
			}
		}

		out = append(out, rendered)
	}

	return out
}
