package fault

import (
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// captureMemorySnapshot queries current process and host memory usage.
// Best-effort: any probe failure leaves the corresponding fields zero
// rather than failing the capture.
func captureMemorySnapshot() *MemorySnapshot {
	snap := &MemorySnapshot{CapturedAt: time.Now().UTC()}

	if vm, err := mem.VirtualMemory(); err == nil {
		snap.HostTotalBytes = vm.Total
		snap.HostAvailableBytes = vm.Available
		snap.HostUsedPercent = vm.UsedPercent
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if info, err := proc.MemoryInfo(); err == nil {
			snap.ProcessRSSBytes = info.RSS
		}
	}

	return snap
}
