// Package modeltest builds model managers backed by the embeddertest fakes.
package modeltest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dshills/snipvault/internal/embedder/embeddertest"
	"github.com/dshills/snipvault/internal/model"
)

// Name is the model name used by the managers built here
const Name = "fake-minilm"

// NewManager returns an unloaded manager whose artifacts already exist on
// disk, so Load never touches the network. Opened sessions are reported
// through onSession when it is non-nil.
func NewManager(t testing.TB, version string, onSession func(*embeddertest.BasisSession)) *model.Manager {
	t.Helper()

	dir := t.TempDir()
	artifacts := filepath.Join(dir, Name)
	if err := os.MkdirAll(artifacts, 0o750); err != nil {
		t.Fatalf("create model dir: %v", err)
	}
	for _, f := range []string{model.ModelFile, model.TokenizerFile} {
		if err := os.WriteFile(filepath.Join(artifacts, f), []byte("fake"), 0o640); err != nil {
			t.Fatalf("write %s: %v", f, err)
		}
	}

	mgr, err := model.NewManager(model.Config{
		Name:      Name,
		Version:   version,
		Dir:       dir,
		BaseURL:   "http://127.0.0.1:0/unreachable",
		Generator: embeddertest.Config(version),
		Factory:   embeddertest.Factory(onSession),
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr
}

// NewLoaded returns a manager that has already loaded the fake model
func NewLoaded(t testing.TB, version string) *model.Manager {
	t.Helper()
	mgr := NewManager(t, version, nil)
	if err := mgr.Load(context.Background()); err != nil {
		t.Fatalf("load model: %v", err)
	}
	return mgr
}
