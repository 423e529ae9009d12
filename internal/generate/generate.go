// Package generate decodes poems from a trained model.
//
// Two decoders are provided:
//
//	Poem      continues a start phrase until <EOP> or the length limit
//	Acrostic  opens each sentence with the next character of a phrase
//
// Both optionally warm up the model with prefix characters that set the mood
// of the poem but are not part of the output. Token selection is greedy
// (top-1) unless a non-zero sampling temperature is configured.
package generate

import (
	"errors"
	"fmt"
	"unicode/utf8"

	borngen "github.com/born-ml/born/generate"
	"github.com/born-ml/born/tokenizer"

	"github.com/born-ml/poet/internal/vocab"
)

// ErrEmptyStart is returned when the start phrase has no characters.
var ErrEmptyStart = errors.New("generate: start phrase is empty")

// DefaultMaxLen is the default limit on decoding steps.
const DefaultMaxLen = 200

// Session advances a model one token at a time. Each session owns its
// recurrent state.
type Session interface {
	// Step feeds token and returns the logits for the next token.
	Step(token int32) []float32
}

// Model creates independent decoding sessions.
type Model interface {
	NewSession() Session
}

// Vocabulary is the tokenizer the decoders work with. Token gives the text
// of a single ID, reserved tokens included.
type Vocabulary interface {
	tokenizer.Tokenizer
	Token(id int32) string
}

// Options controls decoding.
type Options struct {
	MaxLen   int    // maximum number of decoding steps
	Prefix   string // mood-setting characters fed before decoding, never emitted
	Sampling borngen.SamplingConfig
}

// DefaultOptions returns greedy decoding with the default length limit.
func DefaultOptions() Options {
	return Options{MaxLen: DefaultMaxLen}
}

// decoder holds the per-call state shared by Poem and Acrostic.
type decoder struct {
	vocab   Vocabulary
	session Session
	sampler *borngen.Sampler
	input   int32
}

// newDecoder resolves start and the prefix, then warms up a fresh session.
// Every character is looked up before the model is touched, so an unknown
// character fails without partial output.
func newDecoder(m Model, v Vocabulary, start string, opts Options) (*decoder, []int32, error) {
	if !utf8.ValidString(start) || !utf8.ValidString(opts.Prefix) {
		return nil, nil, fmt.Errorf("generate: input is not valid UTF-8")
	}

	startIDs, err := v.Encode(vocab.NormalizePunctuation(start))
	if err != nil {
		return nil, nil, fmt.Errorf("start phrase: %w", err)
	}
	if len(startIDs) == 0 {
		return nil, nil, ErrEmptyStart
	}
	prefix, err := v.Encode(vocab.NormalizePunctuation(opts.Prefix))
	if err != nil {
		return nil, nil, fmt.Errorf("prefix: %w", err)
	}

	d := &decoder{
		vocab:   v,
		session: m.NewSession(),
		sampler: borngen.NewSampler(opts.Sampling),
		input:   v.BosToken(),
	}
	for _, id := range prefix {
		d.session.Step(d.input)
		d.input = id
	}
	return d, startIDs, nil
}

// next feeds the current input and returns the model's choice for the
// following token.
func (d *decoder) next() int32 {
	logits := d.session.Step(d.input)
	return d.sampler.Sample(logits, nil)
}

// Poem continues start with greedy decoding.
//
// The first len(start) steps are forced to the start characters; after that
// the model's own choice is emitted and fed back. Decoding stops after
// opts.MaxLen steps or when <EOP> is produced, which is not included in the
// result. The result always begins with the full start phrase.
func Poem(m Model, v Vocabulary, start string, opts Options) ([]string, error) {
	d, startIDs, err := newDecoder(m, v, start, opts)
	if err != nil {
		return nil, err
	}

	results := make([]string, 0, max(opts.MaxLen, len(startIDs)))
	for _, id := range startIDs {
		results = append(results, v.Token(id))
	}
	for i := 0; i < opts.MaxLen; i++ {
		predicted := d.next()

		var id int32
		if i < len(startIDs) {
			id = startIDs[i]
		} else {
			id = predicted
			results = append(results, v.Token(id))
		}
		d.input = id

		if id == v.EosToken() {
			results = results[:len(results)-1]
			break
		}
	}
	return results, nil
}

// Acrostic writes a poem whose sentences open with the characters of phrase,
// in order.
//
// Whenever the previous token ends a sentence (。 or ！) or is <START>, the
// model's choice is replaced by the next phrase character. Once every phrase
// character has been placed, decoding stops at the next sentence boundary.
// If the model never closes the last sentence, decoding runs until
// opts.MaxLen steps.
func Acrostic(m Model, v Vocabulary, phrase string, opts Options) ([]string, error) {
	d, phraseIDs, err := newDecoder(m, v, phrase, opts)
	if err != nil {
		return nil, err
	}

	var results []string
	next := 0
	prev := v.Token(v.BosToken())
	for i := 0; i < opts.MaxLen; i++ {
		id := d.next()

		if vocab.IsSentenceStart(prev) {
			if next == len(phraseIDs) {
				break
			}
			id = phraseIDs[next]
			next++
		}
		d.input = id

		w := v.Token(id)
		results = append(results, w)
		prev = w
	}
	return results, nil
}
