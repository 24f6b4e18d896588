package admission

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
	"unsafe"
)

const jobSuffixSize = 8 // 8 random bytes read; 48 bits are kept and the low 16 bits carry a process counter

// jobNameCounter folds a monotonically increasing value (its low 16 bits)
// into every generated suffix, so within one process two names generated
// fewer than 65536 calls apart differ even if crypto/rand produced the
// same bytes twice.
var jobNameCounter uint64

// GenerateJobName returns "<pipeline-name>-<16 hex chars>", exceeding the
// ≥40-bit collision-resistance requirement (spec.md §4.5) by combining
// crypto/rand output with a per-process counter.
func GenerateJobName(pipelineName string) string {
	return fmt.Sprintf("%s-%s", pipelineName, generateSuffix())
}

func generateSuffix() string {
	counter := atomic.AddUint64(&jobNameCounter, 1)

	buf := make([]byte, jobSuffixSize)
	if _, err := rand.Read(buf); err != nil {
		timestamp := time.Now().UnixNano()
		ptr := &timestamp
		//nolint:gosec // G103: pointer address used only as fallback entropy
		entropy := uintptr(unsafe.Pointer(ptr))

		return fmt.Sprintf("%x%x%x", timestamp, entropy, counter)[:jobSuffixSize*2]
	}

	suffix := hex.EncodeToString(buf)
	return fmt.Sprintf("%s%04x", suffix[:jobSuffixSize*2-4], counter&0xffff)
}
