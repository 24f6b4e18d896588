package admission

import (
	"testing"

	"github.com/falconeri/falconeri/internal/objectstorage"
)

func TestPartitionByGlobOnePerFile(t *testing.T) {
	objects := []objectstorage.ObjectInfo{
		{URI: "s3://bucket/in/b.txt"},
		{URI: "s3://bucket/in/a.txt"},
	}

	groups, err := partitionByGlob(objects, "s3://bucket/in/", "/*")
	if err != nil {
		t.Fatalf("partitionByGlob() error = %v", err)
	}

	if len(groups) != 2 {
		t.Fatalf("partitionByGlob() = %d groups, want 2", len(groups))
	}

	if groups[0][0] != "s3://bucket/in/a.txt" || groups[1][0] != "s3://bucket/in/b.txt" {
		t.Fatalf("partitionByGlob() = %+v, want sorted by uri", groups)
	}
}

func TestPartitionByGlobGroupsByDirectory(t *testing.T) {
	objects := []objectstorage.ObjectInfo{
		{URI: "s3://bucket/in/run1/a.txt"},
		{URI: "s3://bucket/in/run1/b.txt"},
		{URI: "s3://bucket/in/run2/c.txt"},
	}

	groups, err := partitionByGlob(objects, "s3://bucket/in/", "*/*")
	if err != nil {
		t.Fatalf("partitionByGlob() error = %v", err)
	}

	if len(groups) != 2 {
		t.Fatalf("partitionByGlob() = %d groups, want 2", len(groups))
	}

	if len(groups[0]) != 2 {
		t.Fatalf("partitionByGlob() first group = %+v, want 2 members", groups[0])
	}
}

func TestPartitionByGlobEmptyInput(t *testing.T) {
	groups, err := partitionByGlob(nil, "s3://bucket/in/", "/*")
	if err != nil {
		t.Fatalf("partitionByGlob() error = %v", err)
	}

	if groups != nil {
		t.Fatalf("partitionByGlob() = %+v, want nil for no objects", groups)
	}
}

func TestPartitionByGlobInvalidPattern(t *testing.T) {
	objects := []objectstorage.ObjectInfo{{URI: "s3://bucket/in/a.txt"}}

	if _, err := partitionByGlob(objects, "s3://bucket/in/", "["); err == nil {
		t.Fatal("partitionByGlob() error = nil, want error for malformed glob")
	}
}

func TestLocalPathForWithRepo(t *testing.T) {
	got := localPathFor("s3://bucket/in/run1/a.txt", "run1")
	want := "/pfs/run1/a.txt"

	if got != want {
		t.Fatalf("localPathFor() = %q, want %q", got, want)
	}
}

func TestLocalPathForWithoutRepo(t *testing.T) {
	got := localPathFor("s3://bucket/in/a.txt", "")
	want := "/pfs/a.txt"

	if got != want {
		t.Fatalf("localPathFor() = %q, want %q", got, want)
	}
}

func TestRenderBatchJobSpecWiresResourcesSecretsAndTimeout(t *testing.T) {
	spec := &PipelineSpec{
		Transform: Transform{
			Image: "worker:latest",
			Cmd:   []string{"run"},
			Secrets: []Secret{
				{Mount: &SecretMount{Name: "creds", MountPath: "/secrets/creds"}},
				{Env: &SecretEnv{Name: "api-key", Key: "key", EnvVar: "API_KEY"}},
			},
		},
		ParallelismSpec:  ParallelismSpec{Constant: 3},
		ResourceRequests: ResourceRequests{Memory: "256Mi", CPU: "500m"},
		NodeSelector:     map[string]string{"disktype": "ssd"},
		ServiceAccount:   "falconeri-worker",
		JobTimeout:       "1h",
	}

	got := renderBatchJobSpec("job-1", "falconeri", spec)

	if got.ResourceRequests.Memory != "256Mi" || got.ResourceRequests.CPU != "500m" {
		t.Fatalf("renderBatchJobSpec() resources = %+v, want memory/cpu carried through", got.ResourceRequests)
	}

	if len(got.Secrets) != 2 {
		t.Fatalf("renderBatchJobSpec() secrets = %+v, want 2", got.Secrets)
	}

	if got.NodeSelector["disktype"] != "ssd" {
		t.Fatalf("renderBatchJobSpec() node selector = %+v, want disktype=ssd", got.NodeSelector)
	}

	if got.ServiceAccount != "falconeri-worker" {
		t.Fatalf("renderBatchJobSpec() service account = %q, want falconeri-worker", got.ServiceAccount)
	}

	if got.TTLSecondsAfterFinished == nil || *got.TTLSecondsAfterFinished != 3600 {
		t.Fatalf("renderBatchJobSpec() ttl = %v, want 3600", got.TTLSecondsAfterFinished)
	}
}
