package uptake

import (
	"errors"
	"fmt"
)

// ErrMaxLengthTooSmall is returned when the length limit cannot even hold the
// special tokens of a sequence.
var ErrMaxLengthTooSmall = errors.New("max length too small for special tokens")

// Tokenizer turns text into subword ids. Case folding is the tokenizer's
// responsibility; Tokenize must not add special tokens.
type Tokenizer interface {
	Tokenize(text string) ([]int, error)
	SpecialIDs() SpecialTokens
}

// SpecialTokens holds the ids framing a paired sequence.
type SpecialTokens struct {
	CLS int
	SEP int
}

// Encoding is a packed classifier input. The three slices always have the
// same length.
type Encoding struct {
	InputIDs      []int64
	TokenTypeIDs  []int64
	AttentionMask []int64
}

// Len returns the sequence length.
func (e Encoding) Len() int {
	return len(e.InputIDs)
}

// Shape returns the tensor shape of the encoding lifted to a batch of one.
func (e Encoding) Shape() []int64 {
	return []int64{1, int64(e.Len())}
}

// Encoder packs utterances into the sentence-pair layout expected by a next
// sentence style classifier.
type Encoder struct {
	tok Tokenizer
}

// NewEncoder wraps a tokenizer.
func NewEncoder(tok Tokenizer) *Encoder {
	return &Encoder{tok: tok}
}

// Encode packs a single speaker A utterance and its response.
func (e *Encoder) Encode(textA, textB string, maxLength int) (Encoding, error) {
	return e.Build([]string{textA}, textB, maxLength)
}

// Build packs a conversation history and a reply as
// [CLS] h1 [SEP] ... hn [SEP] reply [SEP].
//
// Segment ids alternate per turn counting back from the reply, which always
// gets 0. When the sequence exceeds maxLength, history tokens are dropped
// from the oldest end first, then reply tokens from its tail.
func (e *Encoder) Build(history []string, reply string, maxLength int) (Encoding, error) {
	turns := make([][]int, 0, len(history)+1)
	for i, text := range history {
		ids, err := e.tok.Tokenize(text)
		if err != nil {
			return Encoding{}, fmt.Errorf("tokenize history turn %d: %w", i, err)
		}
		turns = append(turns, ids)
	}
	ids, err := e.tok.Tokenize(reply)
	if err != nil {
		return Encoding{}, fmt.Errorf("tokenize reply: %w", err)
	}
	turns = append(turns, ids)

	special := len(turns) + 1 // one CLS, one SEP per turn
	if maxLength < special {
		return Encoding{}, fmt.Errorf("%w: need %d, have %d", ErrMaxLengthTooSmall, special, maxLength)
	}
	truncateTurns(turns, maxLength-special)
	return pack(turns, e.tok.SpecialIDs()), nil
}

// truncateTurns trims turns in place so that their total length fits budget.
func truncateTurns(turns [][]int, budget int) {
	total := 0
	for _, t := range turns {
		total += len(t)
	}
	excess := total - budget
	last := len(turns) - 1
	for i := 0; i < last && excess > 0; i++ {
		drop := min(excess, len(turns[i]))
		turns[i] = turns[i][drop:]
		excess -= drop
	}
	if excess > 0 {
		turns[last] = turns[last][:len(turns[last])-excess]
	}
}

func pack(turns [][]int, special SpecialTokens) Encoding {
	n := 1
	for _, t := range turns {
		n += len(t) + 1
	}
	enc := Encoding{
		InputIDs:      make([]int64, 0, n),
		TokenTypeIDs:  make([]int64, 0, n),
		AttentionMask: make([]int64, 0, n),
	}
	push := func(id int, segment int64) {
		enc.InputIDs = append(enc.InputIDs, int64(id))
		enc.TokenTypeIDs = append(enc.TokenTypeIDs, segment)
		enc.AttentionMask = append(enc.AttentionMask, 1)
	}
	last := len(turns) - 1
	for i, t := range turns {
		segment := int64((last - i) % 2)
		if i == 0 {
			push(special.CLS, segment)
		}
		for _, id := range t {
			push(id, segment)
		}
		push(special.SEP, segment)
	}
	return enc
}
