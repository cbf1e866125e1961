// Package bert provides the concrete tokenizer and ONNX Runtime session used
// to score utterance pairs with an exported BERT style classifier.
package bert

import (
	"errors"
	"fmt"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"

	"yashubustudio/uptake/uptake"
)

// Tokenizer adapts a HuggingFace tokenizer.json to uptake.Tokenizer.
type Tokenizer struct {
	tk      *tokenizer.Tokenizer
	special uptake.SpecialTokens
}

// LoadTokenizer reads tokenizer.json and resolves the [CLS] and [SEP] ids.
func LoadTokenizer(path string) (*Tokenizer, error) {
	if path == "" {
		return nil, errors.New("tokenizer path is empty")
	}
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	cls, ok := tk.TokenToId("[CLS]")
	if !ok {
		return nil, fmt.Errorf("tokenizer %s has no [CLS] token", path)
	}
	sep, ok := tk.TokenToId("[SEP]")
	if !ok {
		return nil, fmt.Errorf("tokenizer %s has no [SEP] token", path)
	}
	return &Tokenizer{tk: tk, special: uptake.SpecialTokens{CLS: cls, SEP: sep}}, nil
}

// Tokenize returns the subword ids of text without special tokens.
func (t *Tokenizer) Tokenize(text string) ([]int, error) {
	if text == "" {
		return nil, nil
	}
	enc, err := t.tk.EncodeSingle(text, false)
	if err != nil {
		return nil, err
	}
	ids := make([]int, len(enc.Ids))
	copy(ids, enc.Ids)
	return ids, nil
}

// SpecialIDs returns the [CLS] and [SEP] ids.
func (t *Tokenizer) SpecialIDs() uptake.SpecialTokens {
	return t.special
}
