package embedder

import (
	"fmt"

	"github.com/dshills/snipvault/internal/inference"
	"github.com/dshills/snipvault/internal/tokenizer"
)

// Factory builds the tokenizer and session behind a Generator. Tests swap in
// fakes so no native runtime is needed.
type Factory struct {
	NewTokenizer func(path string) (tokenizer.Tokenizer, error)
	NewSession   func(path string) (inference.Session, error)
}

// DefaultFactory loads tokenizer.json through sugarme/tokenizer and the ONNX
// weights through onnxruntime
func DefaultFactory(dim int, opts tokenizer.Options, ortLibrary string) Factory {
	return Factory{
		NewTokenizer: func(path string) (tokenizer.Tokenizer, error) {
			return tokenizer.Load(path, opts)
		},
		NewSession: func(path string) (inference.Session, error) {
			return inference.NewORTSession(path, dim, ortLibrary)
		},
	}
}

// Open loads both artifacts and returns a ready generator
func (f Factory) Open(modelPath, tokenizerPath string, cfg Config) (*Generator, error) {
	if f.NewTokenizer == nil || f.NewSession == nil {
		return nil, fmt.Errorf("%w: incomplete factory", ErrInvalidInput)
	}

	tok, err := f.NewTokenizer(tokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	session, err := f.NewSession(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	gen, err := New(tok, session, cfg)
	if err != nil {
		_ = session.Close()
		return nil, err
	}
	return gen, nil
}
