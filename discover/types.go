// Package discover probes system resources consulted before loading the
// larger denoiser model.
package discover

import (
	"fmt"

	"github.com/panam-dodia/NeuralLense/format"
)

type MemInfo struct {
	TotalMemory uint64 `json:"total_memory,omitempty"`
	FreeMemory  uint64 `json:"free_memory,omitempty"`
}

func (m MemInfo) String() string {
	return fmt.Sprintf("%s free of %s", format.HumanBytes2(m.FreeMemory), format.HumanBytes2(m.TotalMemory))
}

// SystemMemory reports the host's memory. On platforms without a reliable
// probe it returns ErrUnsupported and callers proceed without a headroom
// check.
func SystemMemory() (MemInfo, error) {
	return systemMemory()
}
