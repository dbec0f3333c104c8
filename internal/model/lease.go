package model

import (
	"log/slog"
	"sync"

	"github.com/dshills/snipvault/internal/embedder"
)

// handle reference-counts one generator. A retired handle closes its
// generator when the last reference goes away.
type handle struct {
	gen    *embedder.Generator
	logger *slog.Logger

	mu      sync.Mutex
	refs    int
	retired bool
	once    sync.Once
}

func newHandle(gen *embedder.Generator, logger *slog.Logger) *handle {
	return &handle{gen: gen, logger: logger}
}

func (h *handle) acquire() {
	h.mu.Lock()
	h.refs++
	h.mu.Unlock()
}

func (h *handle) release() {
	h.mu.Lock()
	h.refs--
	done := h.retired && h.refs == 0
	h.mu.Unlock()
	if done {
		h.close()
	}
}

func (h *handle) retire() {
	h.mu.Lock()
	h.retired = true
	done := h.refs == 0
	h.mu.Unlock()
	if done {
		h.close()
	}
}

func (h *handle) close() {
	h.once.Do(func() {
		if err := h.gen.Close(); err != nil {
			h.logger.Warn("failed to close generator", "error", err)
		}
	})
}

// Lease keeps a generator open until Release
type Lease struct {
	h    *handle
	once sync.Once
}

// Generator returns the leased generator
func (l *Lease) Generator() *embedder.Generator {
	return l.h.gen
}

// Release returns the lease. Extra calls are no-ops.
func (l *Lease) Release() {
	l.once.Do(l.h.release)
}
