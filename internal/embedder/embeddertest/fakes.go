// Package embeddertest provides deterministic tokenizer and session fakes so
// the embedding pipeline can be exercised without model artifacts or the
// onnxruntime library.
package embeddertest

import (
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/snipvault/internal/embedder"
	"github.com/dshills/snipvault/internal/inference"
	"github.com/dshills/snipvault/internal/tokenizer"
)

// Dim is the hidden size produced by BasisSession
const Dim = 384

// VocabSize bounds the ids produced by WordTokenizer
const VocabSize = 30522

// ErrFake is returned by fakes configured to fail
var ErrFake = errors.New("fake failure")

// WordTokenizer lowercases text and maps each whitespace-separated word to a
// stable id derived from its FNV hash. Id 0 is reserved for padding.
type WordTokenizer struct {
	PadTo  int    // Pads with id 0 and mask 0 up to this length
	FailOn string // Encode fails when text contains this substring
}

// TokenID returns the id WordTokenizer assigns to word
func TokenID(word string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(word)))
	return 1 + int64(h.Sum32()%(VocabSize-1))
}

// Encode implements tokenizer.Tokenizer
func (t *WordTokenizer) Encode(text string) (*tokenizer.Encoding, error) {
	if t.FailOn != "" && strings.Contains(text, t.FailOn) {
		return nil, fmt.Errorf("%w: cannot tokenize %q", ErrFake, t.FailOn)
	}

	words := strings.Fields(text)
	enc := &tokenizer.Encoding{
		IDs:           make([]int64, 0, len(words)),
		AttentionMask: make([]int64, 0, len(words)),
	}
	for _, w := range words {
		enc.IDs = append(enc.IDs, TokenID(w))
		enc.AttentionMask = append(enc.AttentionMask, 1)
	}
	for len(enc.IDs) < t.PadTo {
		enc.IDs = append(enc.IDs, 0)
		enc.AttentionMask = append(enc.AttentionMask, 0)
	}
	return enc, nil
}

// BasisSession maps every token to Bias*e0 + e_k where k = 1 + id mod (Dim-1).
// Padding tokens (id 0) map to a large vector that only a broken mask lets
// through. It records how many Run calls overlapped.
type BasisSession struct {
	Bias  float32       // Weight of the component shared by every token
	Delay time.Duration // Sleep inside Run, widens race windows in tests
	Fail  bool          // Run returns ErrFake
	Dim   int           // Hidden size reported; defaults to Dim

	runs        atomic.Int64
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	closed      atomic.Bool
}

// NewBasisSession returns a session with bias 1
func NewBasisSession() *BasisSession {
	return &BasisSession{Bias: 1}
}

// Run implements inference.Session
func (s *BasisSession) Run(ids, mask, typeIDs []int64) (*inference.HiddenState, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		peak := s.maxInFlight.Load()
		if n <= peak || s.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}
	s.runs.Add(1)

	if s.closed.Load() {
		return nil, fmt.Errorf("%w: run on closed session", ErrFake)
	}
	if s.Delay > 0 {
		time.Sleep(s.Delay)
	}
	if s.Fail {
		return nil, fmt.Errorf("%w: forward pass", ErrFake)
	}
	if len(ids) != len(mask) || len(ids) != len(typeIDs) {
		return nil, fmt.Errorf("%w: input lengths differ", ErrFake)
	}

	dim := s.Dim
	if dim == 0 {
		dim = Dim
	}
	hidden := &inference.HiddenState{
		SeqLen: len(ids),
		Dim:    dim,
		Data:   make([]float32, len(ids)*dim),
	}
	for i, id := range ids {
		row := hidden.Data[i*dim : (i+1)*dim]
		if id == 0 {
			row[5%dim] = 100
			continue
		}
		row[0] = s.Bias
		row[1+int(id)%(dim-1)] += 1
	}
	return hidden, nil
}

// Close implements inference.Session
func (s *BasisSession) Close() error {
	s.closed.Store(true)
	return nil
}

// Closed reports whether Close was called
func (s *BasisSession) Closed() bool {
	return s.closed.Load()
}

// Runs returns the number of Run calls
func (s *BasisSession) Runs() int64 {
	return s.runs.Load()
}

// MaxInFlight returns the highest number of overlapping Run calls observed
func (s *BasisSession) MaxInFlight() int32 {
	return s.maxInFlight.Load()
}

// Config returns a generator config for version with caching disabled
func Config(version string) embedder.Config {
	return embedder.Config{
		Model:     version,
		Dimension: Dim,
		MaxChars:  2000,
	}
}

// NewGenerator returns a generator over a WordTokenizer and the given session
func NewGenerator(version string, session *BasisSession) *embedder.Generator {
	gen, err := embedder.New(&WordTokenizer{}, session, Config(version))
	if err != nil {
		panic(err)
	}
	return gen
}

// Factory returns an embedder.Factory producing fakes. Each opened session is
// reported through onSession when it is non-nil.
func Factory(onSession func(*BasisSession)) embedder.Factory {
	var mu sync.Mutex
	return embedder.Factory{
		NewTokenizer: func(string) (tokenizer.Tokenizer, error) {
			return &WordTokenizer{}, nil
		},
		NewSession: func(string) (inference.Session, error) {
			s := NewBasisSession()
			if onSession != nil {
				mu.Lock()
				onSession(s)
				mu.Unlock()
			}
			return s, nil
		},
	}
}
