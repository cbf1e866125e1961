package uptake

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertAligned(t *testing.T, enc Encoding, maxLength int) {
	t.Helper()
	assert.Len(t, enc.TokenTypeIDs, enc.Len())
	assert.Len(t, enc.AttentionMask, enc.Len())
	assert.LessOrEqual(t, enc.Len(), maxLength)
	for _, m := range enc.AttentionMask {
		assert.Equal(t, int64(1), m)
	}
}

func TestEncode_Layout(t *testing.T) {
	e := NewEncoder(newVocabTokenizer())
	enc, err := e.Encode("a b c", "x y", DefaultMaxLength)
	require.NoError(t, err)
	assertAligned(t, enc, DefaultMaxLength)

	// [CLS] a b c [SEP] x y [SEP]
	assert.Equal(t, []int64{testCLS, 1000, 1001, 1002, testSEP, 1003, 1004, testSEP}, enc.InputIDs)
	assert.Equal(t, []int64{1, 1, 1, 1, 1, 0, 0, 0}, enc.TokenTypeIDs)
	assert.Equal(t, []int64{1, 8}, enc.Shape())
}

func TestEncode_EmptyTexts(t *testing.T) {
	e := NewEncoder(newVocabTokenizer())
	enc, err := e.Encode("", "", DefaultMaxLength)
	require.NoError(t, err)
	assert.Equal(t, []int64{testCLS, testSEP, testSEP}, enc.InputIDs)
	assertAligned(t, enc, DefaultMaxLength)
}

func TestEncode_TruncatesSpeakerAFirst(t *testing.T) {
	e := NewEncoder(newVocabTokenizer())
	a := strings.Repeat("a ", 10)
	b := "x y z"
	enc, err := e.Encode(a, b, 10)
	require.NoError(t, err)
	assertAligned(t, enc, 10)
	assert.Equal(t, 10, enc.Len())
	// 3 special tokens, reply intact, 4 speaker A tokens survive.
	assert.Equal(t, []int64{1, 1, 1, 1, 1, 1, 0, 0, 0, 0}, enc.TokenTypeIDs)
	assert.Equal(t, int64(testSEP), enc.InputIDs[enc.Len()-1])
}

func TestEncode_TruncatesReplyTailWhenSpeakerAExhausted(t *testing.T) {
	e := NewEncoder(newVocabTokenizer())
	enc, err := e.Encode("a b", "r1 r2 r3 r4 r5 r6", 6)
	require.NoError(t, err)
	assertAligned(t, enc, 6)
	// [CLS] [SEP] r1 r2 r3 [SEP]
	assert.Equal(t, int64(testCLS), enc.InputIDs[0])
	assert.Equal(t, int64(testSEP), enc.InputIDs[1])
	assert.Equal(t, int64(testSEP), enc.InputIDs[5])
	assert.Equal(t, []int64{1, 1, 0, 0, 0, 0}, enc.TokenTypeIDs)
}

func TestEncode_LengthBoundForManyLimits(t *testing.T) {
	e := NewEncoder(newVocabTokenizer())
	a := strings.Repeat("alpha beta ", 40)
	b := strings.Repeat("gamma ", 30)
	for _, limit := range []int{3, 4, 16, 64, 120, 512} {
		enc, err := e.Encode(a, b, limit)
		require.NoError(t, err, limit)
		assertAligned(t, enc, limit)
	}
}

func TestEncode_MaxLengthTooSmall(t *testing.T) {
	e := NewEncoder(newVocabTokenizer())
	_, err := e.Encode("a", "b", 2)
	assert.ErrorIs(t, err, ErrMaxLengthTooSmall)
}

func TestBuild_HistorySegments(t *testing.T) {
	e := NewEncoder(newVocabTokenizer())
	enc, err := e.Build([]string{"h1", "h2"}, "r", DefaultMaxLength)
	require.NoError(t, err)
	// [CLS] h1 [SEP] h2 [SEP] r [SEP]
	assert.Equal(t, []int64{testCLS, 1000, testSEP, 1001, testSEP, 1002, testSEP}, enc.InputIDs)
	assert.Equal(t, []int64{0, 0, 0, 1, 1, 0, 0}, enc.TokenTypeIDs)
}

func TestBuild_DropsOldestHistoryFirst(t *testing.T) {
	e := NewEncoder(newVocabTokenizer())
	enc, err := e.Build([]string{"o1 o2 o3", "n1"}, "r", 6)
	require.NoError(t, err)
	// budget 2: oldest turn loses everything, newest keeps n1.
	assert.Equal(t, []int64{testCLS, testSEP, 1003, testSEP, 1004, testSEP}, enc.InputIDs)
}

func TestEncode_TokenizerError(t *testing.T) {
	tok := newVocabTokenizer()
	tok.err = errors.New("bad vocab")
	_, err := NewEncoder(tok).Encode("a", "b", 10)
	assert.ErrorContains(t, err, "bad vocab")
}
