package store

import "testing"

func TestCanonicalizeURI(t *testing.T) {
	tests := []struct {
		name string
		uri  string
		want string
	}{
		{name: "plain s3", uri: "s3://bucket/key", want: "s3://bucket/key"},
		{name: "s3a alias", uri: "s3a://bucket/key", want: "s3://bucket/key"},
		{name: "s3n alias", uri: "s3n://bucket/key", want: "s3://bucket/key"},
		{name: "uppercase scheme", uri: "S3://bucket/key", want: "s3://bucket/key"},
		{name: "trailing slash stripped", uri: "s3://bucket/dir/", want: "s3://bucket/dir"},
		{name: "gs scheme passes through", uri: "gs://bucket/key/", want: "gs://bucket/key"},
		{name: "no scheme", uri: "/local/path/", want: "/local/path"},
		{name: "empty string", uri: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := canonicalizeURI(tt.uri); got != tt.want {
				t.Errorf("canonicalizeURI(%q) = %q, want %q", tt.uri, got, tt.want)
			}
		})
	}
}

func TestDatumEligibleForRetry(t *testing.T) {
	tests := []struct {
		name string
		d    Datum
		want bool
	}{
		{
			name: "error under cap is eligible",
			d:    Datum{Status: DatumError, AttemptedRunCount: 1, MaximumAllowedRunCount: 2},
			want: true,
		},
		{
			name: "error at cap is not eligible",
			d:    Datum{Status: DatumError, AttemptedRunCount: 2, MaximumAllowedRunCount: 2},
			want: false,
		},
		{
			name: "done is never eligible",
			d:    Datum{Status: DatumDone, AttemptedRunCount: 0, MaximumAllowedRunCount: 2},
			want: false,
		},
		{
			name: "running is never eligible",
			d:    Datum{Status: DatumRunning, AttemptedRunCount: 1, MaximumAllowedRunCount: 2},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.d.eligibleForRetry(); got != tt.want {
				t.Errorf("eligibleForRetry() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDatumStatusTerminal(t *testing.T) {
	tests := []struct {
		status DatumStatus
		want   bool
	}{
		{DatumReady, false},
		{DatumRunning, false},
		{DatumDone, true},
		{DatumError, true},
		{DatumCanceled, true},
	}

	for _, tt := range tests {
		if got := tt.status.terminal(); got != tt.want {
			t.Errorf("DatumStatus(%q).terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}
