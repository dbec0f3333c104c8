// Package inference runs the transformer forward pass that turns token ids
// into per-token hidden states.
//
// Sessions are not safe for concurrent use. Callers serialize access; the
// embedder holds a mutex around every Run.
package inference

import (
	"errors"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Graph input and output names of sentence-transformers ONNX exports
const (
	InputIDs      = "input_ids"
	AttentionMask = "attention_mask"
	TokenTypeIDs  = "token_type_ids"
	HiddenOutput  = "last_hidden_state"
)

var (
	// ErrModelFile means the weights artifact is missing or unreadable
	ErrModelFile = errors.New("model file unavailable")

	// ErrRun means the forward pass failed
	ErrRun = errors.New("forward pass failed")

	// ErrClosed is returned by Run after Close
	ErrClosed = errors.New("session closed")
)

// HiddenState is a row-major (SeqLen x Dim) matrix
type HiddenState struct {
	SeqLen int
	Dim    int
	Data   []float32
}

// Row returns the hidden vector of token i
func (h *HiddenState) Row(i int) []float32 {
	return h.Data[i*h.Dim : (i+1)*h.Dim]
}

// At returns element (i, j)
func (h *HiddenState) At(i, j int) float32 {
	return h.Data[i*h.Dim+j]
}

// Session is a loaded model
type Session interface {
	Run(ids, mask, typeIDs []int64) (*HiddenState, error)
	Close() error
}

var (
	runtimeOnce sync.Once
	runtimeErr  error
)

// InitRuntime loads the onnxruntime shared library once per process. An empty
// path lets onnxruntime_go use its platform default.
func InitRuntime(libraryPath string) error {
	runtimeOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			runtimeErr = fmt.Errorf("%w: initialize onnxruntime: %w", ErrModelFile, err)
		}
	})
	return runtimeErr
}

// ORTSession runs an ONNX encoder through onnxruntime
type ORTSession struct {
	session *ort.DynamicAdvancedSession
	dim     int
	closed  bool
}

// NewORTSession opens the ONNX model at modelPath. dim is the hidden size the
// model produces.
func NewORTSession(modelPath string, dim int, libraryPath string) (*ORTSession, error) {
	if err := checkModelFile(modelPath); err != nil {
		return nil, err
	}
	if dim <= 0 {
		return nil, fmt.Errorf("%w: invalid hidden dimension %d", ErrModelFile, dim)
	}
	if err := InitRuntime(libraryPath); err != nil {
		return nil, err
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{InputIDs, AttentionMask, TokenTypeIDs},
		[]string{HiddenOutput},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrModelFile, modelPath, err)
	}

	return &ORTSession{session: session, dim: dim}, nil
}

func checkModelFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrModelFile, err)
	}
	if info.IsDir() || info.Size() == 0 {
		return fmt.Errorf("%w: %s is not a model file", ErrModelFile, path)
	}
	return nil
}

// Run executes one forward pass with batch size 1
func (s *ORTSession) Run(ids, mask, typeIDs []int64) (*HiddenState, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if err := validateInputs(ids, mask, typeIDs); err != nil {
		return nil, err
	}

	n := int64(len(ids))
	shape := ort.NewShape(1, n)

	idsTensor, err := ort.NewTensor(shape, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: input_ids tensor: %w", ErrRun, err)
	}
	defer idsTensor.Destroy()

	maskTensor, err := ort.NewTensor(shape, mask)
	if err != nil {
		return nil, fmt.Errorf("%w: attention_mask tensor: %w", ErrRun, err)
	}
	defer maskTensor.Destroy()

	typeTensor, err := ort.NewTensor(shape, typeIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: token_type_ids tensor: %w", ErrRun, err)
	}
	defer typeTensor.Destroy()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, n, int64(s.dim)))
	if err != nil {
		return nil, fmt.Errorf("%w: output tensor: %w", ErrRun, err)
	}
	defer output.Destroy()

	inputs := []ort.Value{idsTensor, maskTensor, typeTensor}
	outputs := []ort.Value{output}
	if err := s.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRun, err)
	}

	// Output memory is released by Destroy, so copy it out
	data := make([]float32, len(output.GetData()))
	copy(data, output.GetData())

	return &HiddenState{SeqLen: int(n), Dim: s.dim, Data: data}, nil
}

// Close releases the native session
func (s *ORTSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.session.Destroy()
}

func validateInputs(ids, mask, typeIDs []int64) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: empty input", ErrRun)
	}
	if len(mask) != len(ids) || len(typeIDs) != len(ids) {
		return fmt.Errorf("%w: input lengths differ (ids=%d mask=%d types=%d)",
			ErrRun, len(ids), len(mask), len(typeIDs))
	}
	return nil
}
