package work

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
)

// PoolSize returns the worker count for a run. A positive configured value wins;
// otherwise the number of logical cores is used.
func PoolSize(configured int) int {
	if configured > 0 {
		return configured
	}
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		return runtime.NumCPU()
	}
	return n
}
