package store

import "strings"

// canonicalizeURI normalizes an OutputFile URI before it is compared or
// inserted, so the (job_id, uri) anti-clobber constraint (invariant I5)
// isn't defeated by insignificant formatting differences between what two
// workers happen to write for the same logical destination.
//
// Normalization rules:
//  1. Scheme lowercasing and aliasing: s3a://, s3n:// → s3:// (Spark/Hadoop
//     convention vs. the AWS-standard scheme already used elsewhere in URIs
//     this coordinator persists).
//  2. A single trailing slash is stripped, since "s3://out/dir" and
//     "s3://out/dir/" name the same object-storage key prefix.
//
// Non-URI strings (no "://") and unrecognized schemes (gs://, etc.) pass
// through with only the trailing slash rule applied.
func canonicalizeURI(uri string) string {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return strings.TrimSuffix(uri, "/")
	}

	return normalizeScheme(scheme) + "://" + strings.TrimSuffix(rest, "/")
}

func normalizeScheme(scheme string) string {
	switch strings.ToLower(scheme) {
	case "s3a", "s3n":
		return "s3"
	default:
		return strings.ToLower(scheme)
	}
}
