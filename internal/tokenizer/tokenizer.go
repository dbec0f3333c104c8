package tokenizer

import (
	"errors"
	"fmt"
	"os"
	"sync"

	hftok "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

var (
	// ErrVocabulary means the tokenizer artifact is missing or malformed
	ErrVocabulary = errors.New("tokenizer vocabulary unavailable")

	// ErrEncode means a loaded tokenizer failed on a specific input
	ErrEncode = errors.New("tokenization failed")
)

// Encoding is the model input derived from one text
type Encoding struct {
	IDs           []int64
	AttentionMask []int64
}

// Len returns the sequence length
func (e *Encoding) Len() int {
	return len(e.IDs)
}

// Tokenizer turns text into an Encoding. IDs and AttentionMask always have
// equal length.
type Tokenizer interface {
	Encode(text string) (*Encoding, error)
}

// Options controls encoding
type Options struct {
	AddSpecialTokens bool
	MaxTokens        int // Zero disables the cap
}

// HFTokenizer wraps a HuggingFace tokenizer.json
type HFTokenizer struct {
	mu   sync.Mutex // sugarme tokenizers keep internal state during encode
	tk   *hftok.Tokenizer
	opts Options
}

// Load reads a tokenizer.json from path
func Load(path string, opts Options) (*HFTokenizer, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVocabulary, err)
	}
	if info.IsDir() || info.Size() == 0 {
		return nil, fmt.Errorf("%w: %s is not a tokenizer file", ErrVocabulary, path)
	}

	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrVocabulary, path, err)
	}

	return &HFTokenizer{tk: tk, opts: opts}, nil
}

// Encode tokenizes text
func (t *HFTokenizer) Encode(text string) (*Encoding, error) {
	if text == "" {
		return &Encoding{IDs: []int64{}, AttentionMask: []int64{}}, nil
	}

	t.mu.Lock()
	en, err := t.tk.EncodeSingle(text, t.opts.AddSpecialTokens)
	t.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}

	return fromEncoding(en.Ids, en.AttentionMask, t.opts.MaxTokens)
}

// fromEncoding widens ids and mask to int64 and applies the token cap
func fromEncoding(ids, mask []int, maxTokens int) (*Encoding, error) {
	if mask == nil {
		mask = make([]int, len(ids))
		for i := range mask {
			mask[i] = 1
		}
	}
	if len(ids) != len(mask) {
		return nil, fmt.Errorf("%w: %d ids but %d mask entries", ErrEncode, len(ids), len(mask))
	}

	n := len(ids)
	if maxTokens > 0 && n > maxTokens {
		n = maxTokens
	}

	enc := &Encoding{
		IDs:           make([]int64, n),
		AttentionMask: make([]int64, n),
	}
	for i := 0; i < n; i++ {
		enc.IDs[i] = int64(ids[i])
		enc.AttentionMask[i] = int64(mask[i])
	}
	return enc, nil
}
