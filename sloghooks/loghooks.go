package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/zimage"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	RouteEvery      uint64
	CancelEvery     uint64
	ContentionEvery uint64
	// Optional URI redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	routeCtr      atomic.Uint64
	cancelCtr     atomic.Uint64
	contentionCtr atomic.Uint64
}

var _ zimage.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(uri string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(uri)
	}
	sum := sha256.Sum256([]byte(uri))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) TaskRouted(uri string, cached bool) {
	if h.l == nil || !sample(h.opts.RouteEvery, &h.routeCtr) {
		return
	}
	pool := "download"
	if cached {
		pool = "cached"
	}
	h.l.Debug("zimage.task_routed",
		"uri", h.redact(uri),
		"pool", pool)
}

func (h *Hooks) TaskCancelled(uri, key, reason string) {
	if h.l == nil || !sample(h.opts.CancelEvery, &h.cancelCtr) {
		return
	}
	h.l.Debug("zimage.task_cancelled",
		"uri", h.redact(uri),
		"key", h.redact(key),
		"reason", reason)
}

func (h *Hooks) TaskFailed(uri string, kind zimage.FailKind, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("zimage.task_failed",
		"uri", h.redact(uri),
		"kind", kind.String(),
		"err", err)
}

func (h *Hooks) URILockContended(uri string) {
	if h.l == nil || !sample(h.opts.ContentionEvery, &h.contentionCtr) {
		return
	}
	h.l.Debug("zimage.uri_lock_contended",
		"uri", h.redact(uri))
}

func (h *Hooks) MemoryTrimmed(before, after int64) {
	if h.l == nil {
		return
	}
	h.l.Info("zimage.memory_trimmed",
		"before", before,
		"after", after)
}

func (h *Hooks) DiskEvicted(name string, size int64) {
	if h.l == nil {
		return
	}
	// name is already a digest
	h.l.Debug("zimage.disk_evicted",
		"name", name,
		"size", size)
}
