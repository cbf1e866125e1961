package uptake

import (
	"context"
	"strings"
	"sync"
)

const (
	testCLS = 101
	testSEP = 102
)

// vocabTokenizer assigns ids to lower-cased words in order of first use.
type vocabTokenizer struct {
	mu    sync.Mutex
	vocab map[string]int
	err   error
}

func newVocabTokenizer() *vocabTokenizer {
	return &vocabTokenizer{vocab: map[string]int{}}
}

func (v *vocabTokenizer) Tokenize(text string) ([]int, error) {
	if v.err != nil {
		return nil, v.err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	fields := strings.Fields(strings.ToLower(text))
	ids := make([]int, len(fields))
	for i, f := range fields {
		id, ok := v.vocab[f]
		if !ok {
			id = 1000 + len(v.vocab)
			v.vocab[f] = id
		}
		ids[i] = id
	}
	return ids, nil
}

func (v *vocabTokenizer) SpecialIDs() SpecialTokens {
	return SpecialTokens{CLS: testCLS, SEP: testSEP}
}

// mockModel returns fixed logits per head and counts calls.
type mockModel struct {
	mu     sync.Mutex
	calls  int
	heads  map[string][]float32
	err    error
	encs   []Encoding
	byText func(enc Encoding) []float32
}

func newMockModel(logits ...float32) *mockModel {
	return &mockModel{heads: map[string][]float32{
		DefaultHead:        logits,
		"utterance_logits": {9, 9, 9},
	}}
}

func (m *mockModel) Predict(_ context.Context, enc Encoding, heads ...string) (map[string][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.encs = append(m.encs, enc)
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[string][]float32, len(heads))
	for _, h := range heads {
		if h == DefaultHead && m.byText != nil {
			out[h] = m.byText(enc)
			continue
		}
		if vec, ok := m.heads[h]; ok {
			out[h] = append([]float32(nil), vec...)
		}
	}
	return out, nil
}

func (m *mockModel) ModelID() string { return "mock" }

func (m *mockModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
