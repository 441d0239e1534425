// Package memstat samples process memory and runs the synthetic memory
// workloads: incremental allocation and forced garbage collection.
package memstat

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

const (
	// chunkSize is the unit of allocation.
	chunkSize = 1 << 20

	// yieldEvery is the number of chunks allocated between yields.
	yieldEvery = 10

	pageSize   = 4096
	bytesPerMB = 1 << 20
)

var (
	// ErrAllocation is returned when a synthetic allocation cannot be made.
	ErrAllocation = errors.New("memory allocation failed")

	// ErrUnsupported is returned when forced collection is disabled.
	ErrUnsupported = errors.New("forced garbage collection is not enabled")
)

// Snapshot is a point-in-time view of process memory, in megabytes.
type Snapshot struct {
	HeapAllocMB       float64 `json:"heap_alloc_mb"`
	HeapSysMB         float64 `json:"heap_sys_mb"`
	RSSMB             float64 `json:"rss_mb"`
	SystemAvailableMB float64 `json:"system_available_mb,omitempty"`
}

// Sub returns s minus o, field by field.
func (s Snapshot) Sub(o Snapshot) Snapshot {
	return Snapshot{
		HeapAllocMB:       round(s.HeapAllocMB - o.HeapAllocMB),
		HeapSysMB:         round(s.HeapSysMB - o.HeapSysMB),
		RSSMB:             round(s.RSSMB - o.RSSMB),
		SystemAvailableMB: round(s.SystemAvailableMB - o.SystemAvailableMB),
	}
}

var (
	selfOnce sync.Once
	self     *process.Process
	selfErr  error
)

func selfProcess() (*process.Process, error) {
	selfOnce.Do(func() {
		self, selfErr = process.NewProcessWithContext(context.Background(), int32(os.Getpid()))
	})
	return self, selfErr
}

// Sample reads heap figures from the Go runtime and resident set size from
// the operating system. If the OS figures are unavailable, RSS falls back to
// the runtime's total obtained memory.
func Sample(ctx context.Context) Snapshot {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	snap := Snapshot{
		HeapAllocMB: toMB(ms.HeapAlloc),
		HeapSysMB:   toMB(ms.HeapSys),
		RSSMB:       toMB(ms.Sys),
	}

	if p, err := selfProcess(); err == nil {
		if info, err := p.MemoryInfoWithContext(ctx); err == nil {
			snap.RSSMB = toMB(info.RSS)
		}
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snap.SystemAvailableMB = toMB(vm.Available)
	}
	return snap
}

// Block is memory held by a synthetic allocation until Release.
type Block struct {
	chunks [][]byte
}

// SizeMB returns the number of megabytes held.
func (b *Block) SizeMB() int {
	return len(b.chunks)
}

// Release drops the block's references so the collector can reclaim them.
func (b *Block) Release() {
	b.chunks = nil
}

// Allocate allocates mb megabytes in 1 MiB chunks, writing to every page so
// the memory is resident, and yields to the scheduler every 10 MiB. Requests
// above maxMB, negative sizes, and runtime allocation panics yield
// ErrAllocation. A cancelled ctx stops the allocation and returns ctx.Err().
func Allocate(ctx context.Context, mb, maxMB int) (b *Block, err error) {
	if mb < 0 {
		return nil, fmt.Errorf("%w: negative size %d MB", ErrAllocation, mb)
	}
	if maxMB > 0 && mb > maxMB {
		return nil, fmt.Errorf("%w: %d MB exceeds limit of %d MB", ErrAllocation, mb, maxMB)
	}

	defer func() {
		if p := recover(); p != nil {
			b = nil
			err = fmt.Errorf("%w: %v", ErrAllocation, p)
		}
	}()

	b = &Block{chunks: make([][]byte, 0, mb)}
	for i := 0; i < mb; i++ {
		chunk := make([]byte, chunkSize)
		for off := 0; off < len(chunk); off += pageSize {
			chunk[off] = byte(i)
		}
		b.chunks = append(b.chunks, chunk)
		allocatedBytes.Add(chunkSize)

		if (i+1)%yieldEvery == 0 {
			if err := ctx.Err(); err != nil {
				b.Release()
				return nil, err
			}
			runtime.Gosched()
		}
	}
	return b, nil
}

// ForceGC runs a full collection and returns freed memory to the OS. It
// returns ErrUnsupported when forced collection is disabled.
func ForceGC(enabled bool) error {
	if !enabled {
		return ErrUnsupported
	}
	runtime.GC()
	debug.FreeOSMemory()
	forcedGCs.Inc()
	return nil
}

func toMB(b uint64) float64 {
	return round(float64(b) / bytesPerMB)
}

// round keeps two decimal places.
func round(v float64) float64 {
	if v < 0 {
		return -round(-v)
	}
	return float64(int64(v*100+0.5)) / 100
}
