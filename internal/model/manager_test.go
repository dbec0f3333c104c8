package model_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/snipvault/internal/embedder"
	"github.com/dshills/snipvault/internal/embedder/embeddertest"
	"github.com/dshills/snipvault/internal/inference"
	"github.com/dshills/snipvault/internal/model"
	"github.com/dshills/snipvault/internal/tokenizer"
)

const (
	testModel    = "test-model"
	weightsBody  = "fake onnx weights"
	tokenizerDoc = `{"model":{"type":"WordPiece"}}`
)

// artifactServer serves the two model files and counts requests per path
type artifactServer struct {
	*httptest.Server
	mu     sync.Mutex
	hits   map[string]int
	delay  time.Duration
	status map[string]int // Forced status per path
}

func newArtifactServer(t *testing.T) *artifactServer {
	t.Helper()
	s := &artifactServer{hits: map[string]int{}, status: map[string]int{}}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		status, forced := s.status[r.URL.Path]
		delay := s.delay
		s.mu.Unlock()

		if delay > 0 {
			time.Sleep(delay)
		}
		if forced {
			w.WriteHeader(status)
			return
		}
		switch r.URL.Path {
		case "/" + testModel + "/onnx/model.onnx":
			_, _ = w.Write([]byte(weightsBody))
		case "/" + testModel + "/tokenizer.json":
			_, _ = w.Write([]byte(tokenizerDoc))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *artifactServer) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits["/"+testModel+path]
}

func (s *artifactServer) Fail(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status["/"+testModel+path] = status
}

type sessions struct {
	mu   sync.Mutex
	list []*embeddertest.BasisSession
}

func (s *sessions) add(b *embeddertest.BasisSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = append(s.list, b)
}

func (s *sessions) at(i int) *embeddertest.BasisSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list[i]
}

func (s *sessions) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.list)
}

func newManager(t *testing.T, baseURL string, factory embedder.Factory) *model.Manager {
	t.Helper()
	mgr, err := model.NewManager(model.Config{
		Name:      testModel,
		Version:   "v1",
		Dir:       t.TempDir(),
		BaseURL:   baseURL + "/{model}",
		Generator: embeddertest.Config(""),
		Factory:   factory,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr
}

func TestManager_AcquireBeforeLoad(t *testing.T) {
	srv := newArtifactServer(t)
	mgr := newManager(t, srv.URL, embeddertest.Factory(nil))

	assert.Equal(t, model.StateUnloaded, mgr.State())
	assert.False(t, mgr.IsLoaded())

	_, err := mgr.Acquire()
	assert.ErrorIs(t, err, model.ErrNotLoaded)
}

func TestManager_LoadDownloadsAndServes(t *testing.T) {
	srv := newArtifactServer(t)
	mgr := newManager(t, srv.URL, embeddertest.Factory(nil))

	require.NoError(t, mgr.Load(context.Background()))
	assert.Equal(t, model.StateLoaded, mgr.State())
	assert.Equal(t, 1, srv.Hits("/onnx/model.onnx"))
	assert.Equal(t, 1, srv.Hits("/tokenizer.json"))

	art := mgr.Artifacts()
	weights, err := os.ReadFile(art.ModelPath)
	require.NoError(t, err)
	assert.Equal(t, weightsBody, string(weights))
	tok, err := os.ReadFile(art.TokenizerPath)
	require.NoError(t, err)
	assert.Equal(t, tokenizerDoc, string(tok))

	lease, err := mgr.Acquire()
	require.NoError(t, err)
	defer lease.Release()

	vec, err := lease.Generator().Generate(context.Background(), "binary search")
	require.NoError(t, err)
	assert.Len(t, vec, embeddertest.Dim)
	assert.Equal(t, "v1", lease.Generator().Model())
}

func TestManager_LoadSkipsDownloadWhenPresent(t *testing.T) {
	srv := newArtifactServer(t)
	mgr := newManager(t, srv.URL, embeddertest.Factory(nil))

	_, err := mgr.EnsureArtifacts(context.Background())
	require.NoError(t, err)
	require.NoError(t, mgr.Load(context.Background()))
	require.NoError(t, mgr.Load(context.Background()))

	assert.Equal(t, 1, srv.Hits("/onnx/model.onnx"))
	assert.Equal(t, 1, srv.Hits("/tokenizer.json"))
}

func TestManager_ConcurrentEnsureSharesDownload(t *testing.T) {
	srv := newArtifactServer(t)
	srv.delay = 50 * time.Millisecond
	mgr := newManager(t, srv.URL, embeddertest.Factory(nil))

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = mgr.EnsureArtifacts(context.Background())
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, srv.Hits("/onnx/model.onnx"))
	assert.Equal(t, 1, srv.Hits("/tokenizer.json"))
}

func TestManager_DownloadFailureLeavesNoFiles(t *testing.T) {
	srv := newArtifactServer(t)
	srv.Fail("/tokenizer.json", http.StatusNotFound)
	mgr := newManager(t, srv.URL, embeddertest.Factory(nil))

	err := mgr.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrDownload)
	assert.Equal(t, model.StateUnloaded, mgr.State())
	assert.False(t, mgr.Downloaded())

	entries, err := os.ReadDir(mgr.Artifacts().Dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no partial or scratch files may remain")

	_, err = mgr.Acquire()
	assert.ErrorIs(t, err, model.ErrNotLoaded)
}

func TestManager_FailedInstallRemovesInstalledArtifact(t *testing.T) {
	srv := newArtifactServer(t)
	mgr := newManager(t, srv.URL, embeddertest.Factory(nil))

	// A non-empty directory at the tokenizer path makes its rename fail
	// after the weights are already in place
	arts := mgr.Artifacts()
	require.NoError(t, os.MkdirAll(filepath.Join(arts.TokenizerPath, "occupied"), 0o750))

	_, err := mgr.EnsureArtifacts(context.Background())
	assert.ErrorIs(t, err, model.ErrDownload)
	assert.False(t, mgr.Downloaded())
	assert.NoFileExists(t, arts.ModelPath)

	entries, err := os.ReadDir(arts.Dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "only the blocking directory may remain")
	assert.Equal(t, filepath.Base(arts.TokenizerPath), entries[0].Name())
}

func TestManager_TruncatedTransferFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		_, _ = w.Write([]byte("short"))
	}))
	defer srv.Close()
	mgr := newManager(t, srv.URL, embeddertest.Factory(nil))

	_, err := mgr.EnsureArtifacts(context.Background())
	assert.ErrorIs(t, err, model.ErrDownload)
	assert.False(t, mgr.Downloaded())
}

func TestManager_FactoryFailure(t *testing.T) {
	srv := newArtifactServer(t)
	factory := embeddertest.Factory(nil)
	factory.NewSession = func(string) (inference.Session, error) {
		return nil, fmt.Errorf("%w: bad weights", inference.ErrModelFile)
	}
	mgr := newManager(t, srv.URL, factory)

	err := mgr.Load(context.Background())
	assert.ErrorIs(t, err, model.ErrModelLoad)
	assert.ErrorIs(t, err, inference.ErrModelFile)
	assert.Equal(t, model.StateUnloaded, mgr.State())
	assert.True(t, mgr.Downloaded(), "artifacts stay for the next attempt")
}

func TestManager_AcquireWhileLoading(t *testing.T) {
	srv := newArtifactServer(t)
	entered := make(chan struct{})
	proceed := make(chan struct{})
	factory := embeddertest.Factory(nil)
	factory.NewTokenizer = func(string) (tokenizer.Tokenizer, error) {
		close(entered)
		<-proceed
		return &embeddertest.WordTokenizer{}, nil
	}
	mgr := newManager(t, srv.URL, factory)

	done := make(chan error, 1)
	go func() { done <- mgr.Load(context.Background()) }()

	<-entered
	assert.Equal(t, model.StateLoading, mgr.State())
	_, err := mgr.Acquire()
	assert.ErrorIs(t, err, model.ErrLoading)
	assert.False(t, mgr.Status().Loaded)

	close(proceed)
	require.NoError(t, <-done)
	assert.True(t, mgr.IsLoaded())
}

func TestManager_ReloadRetiresAfterLastLease(t *testing.T) {
	srv := newArtifactServer(t)
	var opened sessions
	mgr := newManager(t, srv.URL, embeddertest.Factory(opened.add))

	require.NoError(t, mgr.Load(context.Background()))
	lease, err := mgr.Acquire()
	require.NoError(t, err)

	require.NoError(t, mgr.Load(context.Background()))
	require.Equal(t, 2, opened.len())

	first := opened.at(0)
	assert.False(t, first.Closed(), "leased generator must stay open")
	_, err = lease.Generator().Generate(context.Background(), "still usable")
	require.NoError(t, err)

	lease.Release()
	lease.Release()
	assert.True(t, first.Closed())
	assert.False(t, opened.at(1).Closed())

	next, err := mgr.Acquire()
	require.NoError(t, err)
	defer next.Release()
	assert.NotSame(t, lease.Generator(), next.Generator())
}

func TestManager_Unload(t *testing.T) {
	srv := newArtifactServer(t)
	var opened sessions
	mgr := newManager(t, srv.URL, embeddertest.Factory(opened.add))

	require.NoError(t, mgr.Load(context.Background()))
	mgr.Unload()

	assert.Equal(t, model.StateUnloaded, mgr.State())
	assert.True(t, opened.at(0).Closed())
	_, err := mgr.Acquire()
	assert.ErrorIs(t, err, model.ErrNotLoaded)

	// Unloading twice is harmless
	mgr.Unload()
}

func TestManager_ConcurrentLeasesDuringReload(t *testing.T) {
	srv := newArtifactServer(t)
	mgr := newManager(t, srv.URL, embeddertest.Factory(nil))
	require.NoError(t, mgr.Load(context.Background()))

	var failures atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				lease, err := mgr.Acquire()
				if err != nil {
					continue
				}
				if _, err := lease.Generator().Generate(context.Background(), fmt.Sprintf("text %d %d", i, j)); err != nil {
					failures.Add(1)
				}
				lease.Release()
			}
		}()
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, mgr.Load(context.Background()))
	}
	wg.Wait()

	assert.Zero(t, failures.Load(), "a leased generator must never be closed mid-call")
}

func TestManager_Status(t *testing.T) {
	srv := newArtifactServer(t)
	mgr := newManager(t, srv.URL, embeddertest.Factory(nil))

	info := mgr.Status()
	assert.Equal(t, testModel, info.Name)
	assert.Equal(t, "v1", info.Version)
	assert.False(t, info.Downloaded)
	assert.False(t, info.Loaded)
	assert.Equal(t, "unloaded", info.State)
	assert.Empty(t, info.Path)

	require.NoError(t, mgr.Load(context.Background()))
	info = mgr.Status()
	assert.True(t, info.Downloaded)
	assert.True(t, info.Loaded)
	assert.Equal(t, "loaded", info.State)
	assert.Equal(t, filepath.Join(mgr.Artifacts().Dir, model.ModelFile), info.Path)
	assert.Equal(t, int64(len(weightsBody)+len(tokenizerDoc)), info.SizeBytes)
}

func TestManager_URLs(t *testing.T) {
	mgr, err := model.NewManager(model.Config{
		Name: "all-MiniLM-L6-v2",
		Dir:  t.TempDir(),
	})
	require.NoError(t, err)

	modelURL, tokURL := mgr.URLs()
	assert.Equal(t, "https://huggingface.co/sentence-transformers/all-MiniLM-L6-v2/resolve/main/onnx/model.onnx", modelURL)
	assert.Equal(t, "https://huggingface.co/sentence-transformers/all-MiniLM-L6-v2/resolve/main/tokenizer.json", tokURL)
	assert.Equal(t, "all-MiniLM-L6-v2", mgr.Version())
	assert.True(t, strings.HasSuffix(mgr.Artifacts().Dir, "all-MiniLM-L6-v2"))
}

func TestNewManager_RequiresNameAndDir(t *testing.T) {
	_, err := model.NewManager(model.Config{Dir: t.TempDir()})
	assert.Error(t, err)
	_, err = model.NewManager(model.Config{Name: "m"})
	assert.Error(t, err)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "unloaded", model.StateUnloaded.String())
	assert.Equal(t, "loading", model.StateLoading.String())
	assert.Equal(t, "loaded", model.StateLoaded.String())
	assert.Equal(t, "state(9)", model.State(9).String())
}
