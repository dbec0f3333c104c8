package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// artifact is one file to fetch
type artifact struct {
	name string
	url  string
	dest string
}

// URLs returns the download URLs for the weights and the tokenizer
func (m *Manager) URLs() (modelURL, tokenizerURL string) {
	base := strings.TrimRight(strings.ReplaceAll(m.cfg.BaseURL, "{model}", m.cfg.Name), "/")
	return base + "/" + strings.TrimLeft(m.cfg.WeightsPath, "/"), base + "/" + TokenizerFile
}

// Downloaded reports whether both artifacts are on disk
func (m *Manager) Downloaded() bool {
	return fileExists(m.artifacts.ModelPath) && fileExists(m.artifacts.TokenizerPath)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// EnsureArtifacts downloads the model files when either is missing.
// Concurrent callers share a single transfer.
func (m *Manager) EnsureArtifacts(ctx context.Context) (Artifacts, error) {
	if m.Downloaded() {
		return m.artifacts, nil
	}

	_, err, shared := m.downloads.Do(m.artifacts.Dir, func() (any, error) {
		if m.Downloaded() {
			return nil, nil
		}
		return nil, m.download(ctx)
	})
	if shared {
		m.logger.Debug("joined in-progress download")
	}
	if err != nil {
		return Artifacts{}, err
	}
	return m.artifacts, nil
}

// download fetches both artifacts into scratch files and moves them into
// place only when both transfers succeed
func (m *Manager) download(ctx context.Context) error {
	if err := os.MkdirAll(m.artifacts.Dir, 0o750); err != nil {
		return fmt.Errorf("%w: create model directory: %w", ErrDownload, err)
	}

	modelURL, tokenizerURL := m.URLs()
	files := []artifact{
		{name: "model", url: modelURL, dest: m.artifacts.ModelPath},
		{name: "tokenizer", url: tokenizerURL, dest: m.artifacts.TokenizerPath},
	}
	parts := make([]string, len(files))

	m.logger.Info("downloading model artifacts", "dir", m.artifacts.Dir)

	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		parts[i] = scratchPath(f.dest)
		g.Go(func() error {
			n, err := m.fetch(gctx, f.url, parts[i])
			m.metrics.RecordDownload(f.name, err)
			if err != nil {
				return fmt.Errorf("%s: %w", f.name, err)
			}
			m.logger.Info("downloaded artifact", "artifact", f.name, "bytes", n)
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = m.install(files, parts)
	}
	if err != nil {
		for _, p := range parts {
			if rmErr := os.Remove(p); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				m.logger.Warn("failed to remove scratch file", "path", p, "error", rmErr)
			}
		}
		return fmt.Errorf("%w: %w", ErrDownload, err)
	}
	return nil
}

// install renames each scratch file into place. If any rename fails the
// files already installed are removed, so the pair is never half present.
func (m *Manager) install(files []artifact, parts []string) error {
	for i, f := range files {
		if err := os.Rename(parts[i], f.dest); err != nil {
			for _, done := range files[:i] {
				if rmErr := os.Remove(done.dest); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
					m.logger.Warn("failed to remove installed artifact", "path", done.dest, "error", rmErr)
				}
			}
			return fmt.Errorf("install %s: %w", f.name, err)
		}
	}
	return nil
}

func scratchPath(dest string) string {
	return filepath.Join(filepath.Dir(dest), fmt.Sprintf(".%s.%s.part", filepath.Base(dest), uuid.NewString()))
}

// fetch streams url into path and checks the transfer is complete
func (m *Manager) fetch(ctx context.Context, url, path string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("GET %s: unexpected status %s", url, resp.Status)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(f, resp.Body)
	if err == nil && resp.ContentLength >= 0 && n != resp.ContentLength {
		err = fmt.Errorf("GET %s: got %d of %d bytes", url, n, resp.ContentLength)
	}
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return n, err
}
