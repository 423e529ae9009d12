// Package vocab maps poem characters to model token IDs.
//
// A Vocabulary is built once from a corpus and never changes afterwards.
// Besides one token per distinct character it holds three reserved tokens:
//
//	<EOP>   end of poem
//	<START> beginning of poem
//	</s>    padding (always the last ID)
//
// Vocabulary implements the Born tokenizer interface, so it can be used
// anywhere a tokenizer.Tokenizer is expected.
package vocab

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/born-ml/born/tokenizer"
)

// Reserved tokens.
const (
	EndOfPoem = "<EOP>"
	Start     = "<START>"
	Padding   = "</s>"
)

// ErrUnknownChar is returned when a character has no token in the vocabulary.
var ErrUnknownChar = errors.New("character not in vocabulary")

// Vocabulary is a bidirectional character <-> ID mapping.
type Vocabulary struct {
	tokens []string
	ids    map[string]int32
}

var _ tokenizer.Tokenizer = (*Vocabulary)(nil)

// Build creates a vocabulary from the distinct characters of the given poems.
// Characters are ordered by code point so the same corpus always yields the
// same IDs; reserved tokens are appended after them.
func Build(poems []string) *Vocabulary {
	seen := make(map[string]struct{})
	for _, poem := range poems {
		for _, r := range poem {
			seen[string(r)] = struct{}{}
		}
	}

	chars := make([]string, 0, len(seen))
	for c := range seen {
		chars = append(chars, c)
	}
	sort.Strings(chars)

	tokens := append(chars, EndOfPoem, Start, Padding)
	v, _ := FromTokens(tokens)
	return v
}

// FromTokens restores a vocabulary from its ordered token list, as stored in
// a corpus cache. The list must end with the reserved tokens.
func FromTokens(tokens []string) (*Vocabulary, error) {
	n := len(tokens)
	if n < 3 || tokens[n-3] != EndOfPoem || tokens[n-2] != Start || tokens[n-1] != Padding {
		return nil, fmt.Errorf("vocab: token list must end with %s %s %s", EndOfPoem, Start, Padding)
	}

	ids := make(map[string]int32, n)
	for i, tok := range tokens {
		if _, dup := ids[tok]; dup {
			return nil, fmt.Errorf("vocab: duplicate token %q", tok)
		}
		ids[tok] = int32(i) //nolint:gosec // vocabulary size is far below MaxInt32
	}

	return &Vocabulary{
		tokens: append([]string(nil), tokens...),
		ids:    ids,
	}, nil
}

// Tokens returns a copy of the ordered token list.
func (v *Vocabulary) Tokens() []string {
	return append([]string(nil), v.tokens...)
}

// Size returns the number of tokens, reserved tokens included.
func (v *Vocabulary) Size() int {
	return len(v.tokens)
}

// ID returns the ID of a token.
func (v *Vocabulary) ID(token string) (int32, bool) {
	id, ok := v.ids[token]
	return id, ok
}

// Token returns the token with the given ID, or "" if out of range.
func (v *Vocabulary) Token(id int32) string {
	if id < 0 || int(id) >= len(v.tokens) {
		return ""
	}
	return v.tokens[id]
}

// StartID returns the ID of <START>.
func (v *Vocabulary) StartID() int32 { return v.ids[Start] }

// EndID returns the ID of <EOP>.
func (v *Vocabulary) EndID() int32 { return v.ids[EndOfPoem] }

// PadID returns the ID of the padding token.
func (v *Vocabulary) PadID() int32 { return v.ids[Padding] }

// Split breaks text into single-character tokens.
func Split(text string) []string {
	out := make([]string, 0, utf8.RuneCountInString(text))
	for _, r := range text {
		out = append(out, string(r))
	}
	return out
}

// Lookup resolves every token to its ID. The first token absent from the
// vocabulary fails the whole lookup.
func (v *Vocabulary) Lookup(tokens []string) ([]int32, error) {
	ids := make([]int32, len(tokens))
	for i, tok := range tokens {
		id, ok := v.ids[tok]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownChar, tok)
		}
		ids[i] = id
	}
	return ids, nil
}

// Encode converts text to token IDs, one per character.
func (v *Vocabulary) Encode(text string) ([]int32, error) {
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("vocab: input is not valid UTF-8")
	}
	return v.Lookup(Split(text))
}

// Decode converts IDs back to text. Padding is dropped; other reserved
// tokens are kept verbatim.
func (v *Vocabulary) Decode(ids []int32) (string, error) {
	var sb strings.Builder
	pad := v.PadID()
	for _, id := range ids {
		if id == pad {
			continue
		}
		tok := v.Token(id)
		if tok == "" {
			return "", fmt.Errorf("vocab: id %d out of range [0, %d)", id, len(v.tokens))
		}
		sb.WriteString(tok)
	}
	return sb.String(), nil
}

// VocabSize returns the total vocabulary size.
func (v *Vocabulary) VocabSize() int { return len(v.tokens) }

// GetVocab returns the token -> ID map.
func (v *Vocabulary) GetVocab() map[string]int32 {
	out := make(map[string]int32, len(v.ids))
	for k, id := range v.ids {
		out[k] = id
	}
	return out
}

// BosToken returns the <START> ID.
func (v *Vocabulary) BosToken() int32 { return v.StartID() }

// EosToken returns the <EOP> ID.
func (v *Vocabulary) EosToken() int32 { return v.EndID() }

// PadToken returns the padding ID.
func (v *Vocabulary) PadToken() int32 { return v.PadID() }

// UnkToken returns -1: unknown characters are an error, not a token.
func (v *Vocabulary) UnkToken() int32 { return -1 }

// IsSpecialToken reports whether id is one of the reserved tokens.
func (v *Vocabulary) IsSpecialToken(id int32) bool {
	return int(id) >= len(v.tokens)-3 && int(id) < len(v.tokens)
}
