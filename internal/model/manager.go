package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dshills/snipvault/internal/embedder"
	"github.com/dshills/snipvault/internal/metrics"
	"github.com/dshills/snipvault/pkg/types"
)

var (
	ErrModelLoad = errors.New("model load failed")
	ErrDownload  = errors.New("model download failed")
	ErrNotLoaded = errors.New("model not loaded")
	ErrLoading   = errors.New("model is loading")
)

// Artifact file names inside the model directory
const (
	ModelFile     = "model.onnx"
	TokenizerFile = "tokenizer.json"
)

// Download defaults
const (
	DefaultBaseURL     = "https://huggingface.co/sentence-transformers/{model}/resolve/main"
	DefaultWeightsPath = "onnx/model.onnx"
	DefaultTimeout     = 10 * time.Minute
)

// State is the lifecycle state of a Manager
type State int32

const (
	StateUnloaded State = iota
	StateLoading
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config holds manager settings
type Config struct {
	Name        string // Model name, also the subdirectory under Dir
	Version     string // Tag stamped on embeddings; defaults to Name
	Dir         string // Root directory for models
	BaseURL     string // May contain {model}
	WeightsPath string // Weights path relative to BaseURL
	Timeout     time.Duration
	HTTPClient  *http.Client

	Generator embedder.Config
	Factory   embedder.Factory

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Artifacts locates the files of one model
type Artifacts struct {
	Dir           string
	ModelPath     string
	TokenizerPath string
}

// Manager is the single authority over which generator is active
type Manager struct {
	cfg       Config
	artifacts Artifacts
	client    *http.Client
	metrics   *metrics.Metrics
	logger    *slog.Logger

	loadMu sync.Mutex // serializes Load and Unload

	mu     sync.RWMutex // guards state and active
	state  State
	active *handle

	downloads singleflight.Group
}

// NewManager creates a manager in the Unloaded state
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("%w: model name is required", ErrModelLoad)
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("%w: model directory is required", ErrModelLoad)
	}
	if cfg.Version == "" {
		cfg.Version = cfg.Name
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.WeightsPath == "" {
		cfg.WeightsPath = DefaultWeightsPath
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	cfg.Generator.Model = cfg.Version
	if cfg.Generator.Metrics == nil {
		cfg.Generator.Metrics = cfg.Metrics
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Generator.Logger == nil {
		cfg.Generator.Logger = logger
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	dir := filepath.Join(cfg.Dir, cfg.Name)
	m := &Manager{
		cfg: cfg,
		artifacts: Artifacts{
			Dir:           dir,
			ModelPath:     filepath.Join(dir, ModelFile),
			TokenizerPath: filepath.Join(dir, TokenizerFile),
		},
		client:  client,
		metrics: cfg.Metrics,
		logger:  logger.With("model", cfg.Name),
	}
	m.metrics.SetModelState(int(StateUnloaded))
	return m, nil
}

// Artifacts returns the artifact locations
func (m *Manager) Artifacts() Artifacts {
	return m.artifacts
}

// Version returns the tag stamped on embeddings from this model
func (m *Manager) Version() string {
	return m.cfg.Version
}

// State returns the current lifecycle state
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsLoaded reports whether a generator can be acquired
func (m *Manager) IsLoaded() bool {
	return m.State() == StateLoaded
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	m.metrics.SetModelState(int(s))
}

// Load makes sure the artifacts exist, opens them and makes the resulting
// generator active. On failure the manager ends Unloaded and any previous
// generator is retired.
func (m *Manager) Load(ctx context.Context) error {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	start := time.Now()
	m.setState(StateLoading)
	m.logger.Info("loading model", "version", m.cfg.Version)

	err := m.load(ctx)
	m.metrics.RecordModelLoad(err)
	if err != nil {
		m.swap(nil, StateUnloaded)
		m.logger.Error("model load failed", "version", m.cfg.Version, "error", err)
		return err
	}

	m.logger.Info("model loaded", "version", m.cfg.Version, "duration", time.Since(start))
	return nil
}

func (m *Manager) load(ctx context.Context) error {
	artifacts, err := m.EnsureArtifacts(ctx)
	if err != nil {
		return err
	}

	gen, err := m.cfg.Factory.Open(artifacts.ModelPath, artifacts.TokenizerPath, m.cfg.Generator)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrModelLoad, err)
	}

	m.swap(newHandle(gen, m.logger), StateLoaded)
	return nil
}

// swap installs h as the active handle and retires the previous one
func (m *Manager) swap(h *handle, state State) {
	m.mu.Lock()
	old := m.active
	m.active = h
	m.state = state
	m.mu.Unlock()
	m.metrics.SetModelState(int(state))

	if old != nil {
		old.retire()
	}
}

// Unload drops the active generator. It is closed once in-flight leases end.
func (m *Manager) Unload() {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	if m.State() == StateUnloaded {
		return
	}
	m.swap(nil, StateUnloaded)
	m.logger.Info("model unloaded", "version", m.cfg.Version)
}

// Close unloads the model
func (m *Manager) Close() error {
	m.Unload()
	return nil
}

// Acquire leases the active generator. The caller must Release the lease.
func (m *Manager) Acquire() (*Lease, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch m.state {
	case StateLoading:
		return nil, ErrLoading
	case StateLoaded:
		m.active.acquire()
		return &Lease{h: m.active}, nil
	default:
		return nil, ErrNotLoaded
	}
}

// Status reports what is on disk and what is loaded
func (m *Manager) Status() types.ModelInfo {
	state := m.State()
	info := types.ModelInfo{
		Name:    m.cfg.Name,
		Version: m.cfg.Version,
		Loaded:  state == StateLoaded,
		State:   state.String(),
	}

	modelInfo, modelErr := os.Stat(m.artifacts.ModelPath)
	tokInfo, tokErr := os.Stat(m.artifacts.TokenizerPath)
	if modelErr == nil && tokErr == nil {
		info.Downloaded = true
		info.Path = m.artifacts.ModelPath
		info.SizeBytes = modelInfo.Size() + tokInfo.Size()
	}
	return info
}
