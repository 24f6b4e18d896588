package admission

import "testing"

func validSpecJSON() []byte {
	return []byte(`{
		"pipeline": {"name": "edges"},
		"transform": {"image": "edges:latest", "cmd": ["./run"]},
		"input": {"atom": {"uri": "s3://bucket/in/", "glob": "/*"}},
		"egress": {"uri": "s3://bucket/out/"},
		"parallelism_spec": {"constant": 2},
		"resource_requests": {"memory": "256Mi", "cpu": "500m"}
	}`)
}

func TestParseAndValidateAcceptsMinimalSpec(t *testing.T) {
	spec, err := ParseAndValidate(validSpecJSON())
	if err != nil {
		t.Fatalf("ParseAndValidate() error = %v", err)
	}

	if spec.DatumTries != 1 {
		t.Fatalf("DatumTries = %d, want default 1", spec.DatumTries)
	}
}

func TestParseAndValidateRejectsMissingImage(t *testing.T) {
	raw := []byte(`{
		"pipeline": {"name": "edges"},
		"transform": {"cmd": ["./run"]},
		"input": {"atom": {"uri": "s3://bucket/in/", "glob": "/*"}},
		"egress": {"uri": "s3://bucket/out/"},
		"parallelism_spec": {"constant": 1},
		"resource_requests": {"memory": "256Mi", "cpu": "500m"}
	}`)

	if _, err := ParseAndValidate(raw); err == nil {
		t.Fatal("ParseAndValidate() error = nil, want validation error")
	}
}

func TestParseAndValidateRejectsMalformedSecretUnion(t *testing.T) {
	spec, err := ParseAndValidate(validSpecJSON())
	if err != nil {
		t.Fatalf("ParseAndValidate() error = %v", err)
	}

	spec.Transform.Secrets = []Secret{{}}
	if err := spec.Validate(); err == nil {
		t.Fatal("Validate() error = nil, want error for secret with neither mount nor env")
	}

	spec.Transform.Secrets = []Secret{{
		Mount: &SecretMount{Name: "a", MountPath: "/a"},
		Env:   &SecretEnv{Name: "a", Key: "k", EnvVar: "A"},
	}}
	if err := spec.Validate(); err == nil {
		t.Fatal("Validate() error = nil, want error for secret with both mount and env")
	}
}

func TestParseAndValidateRejectsBadJobTimeout(t *testing.T) {
	spec, err := ParseAndValidate(validSpecJSON())
	if err != nil {
		t.Fatalf("ParseAndValidate() error = %v", err)
	}

	spec.JobTimeout = "not-a-duration"
	if err := spec.Validate(); err == nil {
		t.Fatal("Validate() error = nil, want error for malformed job_timeout")
	}
}
