// Package embedder turns text into fixed-length sentence embeddings with a
// local transformer model.
//
// A Generator combines a tokenizer and an inference session:
//
//	gen, err := embedder.DefaultFactory(384, tokenizer.Options{}, "").Open(
//	    "models/all-MiniLM-L6-v2/model.onnx",
//	    "models/all-MiniLM-L6-v2/tokenizer.json",
//	    embedder.Config{Model: "all-MiniLM-L6-v2", Dimension: 384, MaxChars: 2000, CacheSize: 1000},
//	)
//	if err != nil {
//	    return err
//	}
//	defer gen.Close()
//
//	vec, err := gen.Generate(ctx, "binary search in Go")
//
// # Pipeline
//
// Generate truncates the text to MaxChars characters, tokenizes it, runs a
// single forward pass, averages the hidden states of attended tokens and
// scales the result to unit length. Empty input yields the zero vector.
// The output for a given text is bit-identical across calls.
//
// # Concurrency
//
// Inference sessions are not safe for concurrent use. The generator holds a
// mutex for each forward pass, so concurrent callers are serialized one
// text at a time.
//
// # Caching
//
// Recent texts are cached by SHA-256 in an LRU. Cached vectors are copied on
// the way in and out.
//
// # Errors
//
// Failures wrap ErrTokenization or ErrInference. Nothing is retried.
package embedder
