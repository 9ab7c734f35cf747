package zimage

import (
	"math"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/shirou/gopsutil/v4/mem"
)

const (
	defaultPoolSize = 3
	defaultDirName  = "zImage"
	fallbackHeapCap = 64 << 20

	// ceiling for a cap derived from physical memory
	maxDerivedHeapCap = 1 << 30
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

// heapCap is the memory the process may use: the GOMEMLIMIT soft limit when
// set, else physical memory clamped to 1 GiB, else 64 MiB.
func heapCap() int64 {
	var total uint64
	if vm, err := mem.VirtualMemory(); err == nil {
		total = vm.Total
	}
	return heapCapFrom(debug.SetMemoryLimit(-1), total)
}

func heapCapFrom(limit int64, total uint64) int64 {
	if limit > 0 && limit != math.MaxInt64 {
		return limit
	}
	if total > 0 {
		return int64(min(total, maxDerivedHeapCap))
	}
	return fallbackHeapCap
}

func defaultDiskDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, defaultDirName)
}

// defaultSize is the target size for sinks that know neither their own nor
// their widget's size.
func defaultSize(screenW, screenH int) (w, h int) {
	w, h = DefaultWidth, DefaultHeight
	if screenW > 0 {
		w = max(1, screenW/2)
	}
	if screenH > 0 {
		h = max(1, screenH/2)
	}
	return w, h
}
