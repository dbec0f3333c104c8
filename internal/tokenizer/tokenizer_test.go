package tokenizer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "tokenizer.json"), Options{})
	assert.ErrorIs(t, err, ErrVocabulary)
}

func TestLoad_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokenizer.json")
	require.NoError(t, os.WriteFile(path, nil, 0600))

	_, err := Load(path, Options{})
	assert.ErrorIs(t, err, ErrVocabulary)
}

func TestLoad_Directory(t *testing.T) {
	_, err := Load(t.TempDir(), Options{})
	assert.ErrorIs(t, err, ErrVocabulary)
}

func TestFromEncoding(t *testing.T) {
	tests := []struct {
		name     string
		ids      []int
		mask     []int
		max      int
		wantIDs  []int64
		wantMask []int64
		wantErr  bool
	}{
		{
			name:     "widens values",
			ids:      []int{101, 2023, 102},
			mask:     []int{1, 1, 1},
			wantIDs:  []int64{101, 2023, 102},
			wantMask: []int64{1, 1, 1},
		},
		{
			name:     "keeps padding mask",
			ids:      []int{7, 8, 0},
			mask:     []int{1, 1, 0},
			wantIDs:  []int64{7, 8, 0},
			wantMask: []int64{1, 1, 0},
		},
		{
			name:     "caps at max tokens",
			ids:      []int{1, 2, 3, 4},
			mask:     []int{1, 1, 1, 1},
			max:      2,
			wantIDs:  []int64{1, 2},
			wantMask: []int64{1, 1},
		},
		{
			name:     "missing mask means all attended",
			ids:      []int{5, 6},
			wantIDs:  []int64{5, 6},
			wantMask: []int64{1, 1},
		},
		{
			name:    "length mismatch",
			ids:     []int{1, 2},
			mask:    []int{1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := fromEncoding(tt.ids, tt.mask, tt.max)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrEncode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantIDs, enc.IDs)
			assert.Equal(t, tt.wantMask, enc.AttentionMask)
			assert.Equal(t, len(tt.wantIDs), enc.Len())
		})
	}
}

func TestEncode_EmptyText(t *testing.T) {
	// Empty input never reaches the underlying tokenizer
	tk := &HFTokenizer{}
	enc, err := tk.Encode("")
	require.NoError(t, err)
	assert.Equal(t, 0, enc.Len())
	assert.Len(t, enc.AttentionMask, 0)
}

const testTokenizer = "testdata/tokenizer.json"

func TestEncode_TokenizerFile(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		text     string
		wantIDs  []int64
		wantMask []int64
	}{
		{
			name:     "plain words",
			text:     "binary search in go",
			wantIDs:  []int64{4, 5, 6, 7},
			wantMask: []int64{1, 1, 1, 1},
		},
		{
			name:     "normalizes case",
			text:     "Binary SEARCH",
			wantIDs:  []int64{4, 5},
			wantMask: []int64{1, 1},
		},
		{
			name:     "unknown word",
			text:     "binary cake",
			wantIDs:  []int64{4, 1},
			wantMask: []int64{1, 1},
		},
		{
			name:     "whitespace only",
			text:     "   ",
			wantIDs:  []int64{},
			wantMask: []int64{},
		},
		{
			name:     "special tokens",
			opts:     Options{AddSpecialTokens: true},
			text:     "binary search",
			wantIDs:  []int64{2, 4, 5, 3},
			wantMask: []int64{1, 1, 1, 1},
		},
		{
			name:     "token cap",
			opts:     Options{MaxTokens: 2},
			text:     "binary search in go",
			wantIDs:  []int64{4, 5},
			wantMask: []int64{1, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk, err := Load(testTokenizer, tt.opts)
			require.NoError(t, err)

			enc, err := tk.Encode(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.wantIDs, enc.IDs)
			assert.Equal(t, tt.wantMask, enc.AttentionMask)
			assert.Equal(t, len(enc.IDs), len(enc.AttentionMask))
		})
	}
}

func TestEncode_Deterministic(t *testing.T) {
	tk, err := Load(testTokenizer, Options{})
	require.NoError(t, err)

	first, err := tk.Encode("binary search in go")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := tk.Encode("binary search in go")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokenizer.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"model": {"type": "WordPiece",`), 0600))

	_, err := Load(path, Options{})
	assert.ErrorIs(t, err, ErrVocabulary)
}
