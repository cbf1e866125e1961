package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yashubustudio/uptake/uptake"
)

type wordTokenizer struct{}

func (wordTokenizer) Tokenize(text string) ([]int, error) {
	fields := strings.Fields(text)
	ids := make([]int, len(fields))
	for i, f := range fields {
		ids[i] = 100 + len(f)
	}
	return ids, nil
}

func (wordTokenizer) SpecialIDs() uptake.SpecialTokens {
	return uptake.SpecialTokens{CLS: 101, SEP: 102}
}

type stubModel struct {
	calls atomic.Int32
	err   error
}

func (m *stubModel) Predict(_ context.Context, enc uptake.Encoding, heads ...string) (map[string][]float32, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	out := map[string][]float32{}
	for _, h := range heads {
		out[h] = []float32{0, float32(enc.Len()) / 10}
	}
	return out, nil
}

func (m *stubModel) ModelID() string { return "stub" }

func stubLoader(m *stubModel, closed *bool) LoadBackend {
	return func(uptake.ModelConfig, zerolog.Logger) (*Backend, error) {
		return &Backend{
			Tokenizer: wordTokenizer{},
			Model:     m,
			Close: func() error {
				*closed = true
				return nil
			},
		}, nil
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestRun_WritesScoredTable(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "pairs.csv")
	writeFile(t, in, "id,speakerA,speakerB\n"+
		"1,I think the answer is maybe four or five,why do you think that\n"+
		"2,ok,sure\n"+
		"3,we added the two numbers to get ten,so ten is the total\n")

	model := &stubModel{}
	var closed bool
	res, err := Run(context.Background(), uptake.Config{DataFile: in, Workers: 2}, stubLoader(model, &closed), zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, closed)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, filepath.Join(dir, "pairs_uptake.csv"), res.OutputPath)
	assert.Equal(t, uptake.Summary{Total: 3, Scored: 2, Gated: 1, Elapsed: res.Summary.Elapsed}, res.Summary)
	assert.Equal(t, int32(2), model.calls.Load())

	out, err := uptake.ReadTable(res.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "speakerA", "speakerB", uptake.DefaultOutputCol}, out.Header)
	require.Len(t, out.Rows, 3)
	assert.Equal(t, "1", out.Rows[0][0])
	assert.NotEmpty(t, out.Rows[0][3])
	assert.Empty(t, out.Rows[1][3])
	assert.NotEmpty(t, out.Rows[2][3])
}

func TestRun_ModelFailureAborts(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "pairs.csv")
	writeFile(t, in, "speakerA,speakerB\none two three four five,reply\n")

	boom := errors.New("boom")
	var closed bool
	res, err := Run(context.Background(), uptake.Config{DataFile: in}, stubLoader(&stubModel{err: boom}, &closed), zerolog.Nop())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var rowErr *uptake.RowError
	require.ErrorAs(t, err, &rowErr)
	assert.Equal(t, 0, rowErr.Row)
	assert.Equal(t, 1, res.Summary.Failed)

	_, statErr := os.Stat(filepath.Join(dir, "pairs_uptake.csv"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_MissingColumn(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "pairs.tsv")
	writeFile(t, in, "foo\tbar\na\tb\n")

	var closed bool
	_, err := Run(context.Background(), uptake.Config{DataFile: in}, stubLoader(&stubModel{}, &closed), zerolog.Nop())
	assert.ErrorIs(t, err, uptake.ErrColumnNotFound)
	assert.False(t, closed)
}

func TestRun_RequiresDataFile(t *testing.T) {
	_, err := Run(context.Background(), uptake.Config{}, nil, zerolog.Nop())
	assert.Error(t, err)
}
