// Package tokenizer converts text into the token ids and attention mask a
// transformer encoder consumes.
//
// HFTokenizer reads a HuggingFace tokenizer.json through sugarme/tokenizer.
// Encoding is deterministic: the same text always yields the same ids. Special
// tokens ([CLS], [SEP]) are not added by default, matching how stored
// embeddings were produced; set Options.AddSpecialTokens to change that, and
// regenerate embeddings afterwards.
package tokenizer
