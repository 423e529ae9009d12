// Package corpus turns a poem collection into fixed-length token sequences.
//
// Poems are read from chinese-poetry style JSON files, cleaned, filtered by
// author and sentence length, wrapped in <START> ... <EOP>, and padded on the
// left (or truncated on the right) to a fixed length. The result can be cached
// on disk so later runs skip parsing.
package corpus

import (
	"encoding/gob"
	"errors"
	"fmt"
	"math/rand"
	"os"

	"github.com/born-ml/born/tokenizer"

	"github.com/born-ml/poet/internal/vocab"
)

// Common errors.
var (
	ErrNoPoems       = errors.New("no poems found")
	ErrCacheMismatch = errors.New("corpus cache does not match configuration")
)

// Options selects and shapes the poems of a corpus.
type Options struct {
	Dir       string // directory with the JSON files
	Category  string // file name prefix, e.g. "poet.tang"
	Author    string // keep only this author ("" = all)
	Constrain int    // keep only poems whose sentences all have this length (0 = any)
	MaxLen    int    // sequence length after padding/truncation
}

// Corpus is the tokenized, padded poem collection.
type Corpus struct {
	Vocab  *vocab.Vocabulary
	Poems  [][]int32 // [num_poems][MaxLen]
	MaxLen int
}

// Build tokenizes cleaned poems with a vocabulary built from them.
func Build(poems []string, maxLen int) (*Corpus, error) {
	v := vocab.Build(poems)

	seqs := make([][]int32, len(poems))
	for i, p := range poems {
		ids, err := EncodePoem(v, p, maxLen)
		if err != nil {
			return nil, fmt.Errorf("poem %d: %w", i, err)
		}
		seqs[i] = ids
	}

	return &Corpus{Vocab: v, Poems: seqs, MaxLen: maxLen}, nil
}

// EncodePoem wraps the tokens of text in the tokenizer's begin and end
// tokens and pads the result to maxLen.
func EncodePoem(tok tokenizer.Tokenizer, text string, maxLen int) ([]int32, error) {
	body, err := tok.Encode(text)
	if err != nil {
		return nil, err
	}
	ids := make([]int32, 0, len(body)+2)
	ids = append(ids, tok.BosToken())
	ids = append(ids, body...)
	ids = append(ids, tok.EosToken())
	return Pad(ids, maxLen, tok.PadToken()), nil
}

// Pad fits ids to length n: shorter sequences get pad values prepended,
// longer ones lose their tail.
func Pad(ids []int32, n int, pad int32) []int32 {
	out := make([]int32, n)
	if len(ids) >= n {
		copy(out, ids[:n])
		return out
	}
	offset := n - len(ids)
	for i := 0; i < offset; i++ {
		out[i] = pad
	}
	copy(out[offset:], ids)
	return out
}

// NumPoems returns the number of sequences.
func (c *Corpus) NumPoems() int {
	return len(c.Poems)
}

// Batches shuffles the poem order with rng (nil = keep order) and splits it
// into batches of batchSize. The last batch is smaller when the corpus does
// not divide evenly; it is kept.
func (c *Corpus) Batches(batchSize int, rng *rand.Rand) []Batch {
	indices := make([]int, len(c.Poems))
	for i := range indices {
		indices[i] = i
	}
	if rng != nil {
		rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	batches := make([]Batch, 0, (len(indices)+batchSize-1)/batchSize)
	for start := 0; start < len(indices); start += batchSize {
		end := min(start+batchSize, len(indices))
		poems := make([][]int32, 0, end-start)
		for _, idx := range indices[start:end] {
			poems = append(poems, c.Poems[idx])
		}
		batches = append(batches, Batch{Poems: poems})
	}
	return batches
}

// Batch is a group of equal-length sequences trained together.
type Batch struct {
	Poems [][]int32
}

// Size returns the number of poems in the batch.
func (b Batch) Size() int {
	return len(b.Poems)
}

// Len returns the sequence length.
func (b Batch) Len() int {
	if len(b.Poems) == 0 {
		return 0
	}
	return len(b.Poems[0])
}

// Column returns the token at position t of every poem.
func (b Batch) Column(t int) []int32 {
	col := make([]int32, len(b.Poems))
	for i, p := range b.Poems {
		col[i] = p[t]
	}
	return col
}

// cacheFile is the on-disk form of a Corpus.
type cacheFile struct {
	Tokens []string
	MaxLen int
	Poems  [][]int32
}

// Save writes the corpus to path.
func (c *Corpus) Save(path string) error {
	f, err := os.Create(path) //nolint:gosec // G304: cache path is user supplied by design
	if err != nil {
		return fmt.Errorf("create corpus cache: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	cf := cacheFile{Tokens: c.Vocab.Tokens(), MaxLen: c.MaxLen, Poems: c.Poems}
	if err := gob.NewEncoder(f).Encode(&cf); err != nil {
		return fmt.Errorf("encode corpus cache: %w", err)
	}
	return f.Close()
}

// ReadCache loads a corpus written by Save.
func ReadCache(path string) (*Corpus, error) {
	f, err := os.Open(path) //nolint:gosec // G304: cache path is user supplied by design
	if err != nil {
		return nil, fmt.Errorf("open corpus cache: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	var cf cacheFile
	if err := gob.NewDecoder(f).Decode(&cf); err != nil {
		return nil, fmt.Errorf("decode corpus cache %s: %w", path, err)
	}

	v, err := vocab.FromTokens(cf.Tokens)
	if err != nil {
		return nil, fmt.Errorf("corpus cache %s: %w", path, err)
	}
	for i, p := range cf.Poems {
		if len(p) != cf.MaxLen {
			return nil, fmt.Errorf("corpus cache %s: poem %d has length %d, want %d", path, i, len(p), cf.MaxLen)
		}
		for _, id := range p {
			if id < 0 || int(id) >= v.Size() {
				return nil, fmt.Errorf("corpus cache %s: poem %d has token %d outside vocabulary of %d", path, i, id, v.Size())
			}
		}
	}

	return &Corpus{Vocab: v, Poems: cf.Poems, MaxLen: cf.MaxLen}, nil
}

// LoadVocab returns the vocabulary of the corpus. A cached corpus is used
// whatever its sequence length; without a cache the corpus is built and cached
// as Load does.
func LoadVocab(cachePath string, opts Options) (*vocab.Vocabulary, error) {
	if cachePath != "" {
		if _, err := os.Stat(cachePath); err == nil {
			c, err := ReadCache(cachePath)
			if err != nil {
				return nil, err
			}
			return c.Vocab, nil
		}
	}
	c, err := Load(cachePath, opts)
	if err != nil {
		return nil, err
	}
	return c.Vocab, nil
}

// Load returns the cached corpus at cachePath when it exists, otherwise it
// parses opts.Dir, builds the corpus and writes the cache.
func Load(cachePath string, opts Options) (*Corpus, error) {
	if cachePath != "" {
		if _, err := os.Stat(cachePath); err == nil {
			c, err := ReadCache(cachePath)
			if err != nil {
				return nil, err
			}
			if opts.MaxLen > 0 && c.MaxLen != opts.MaxLen {
				return nil, fmt.Errorf("%w: cache has max length %d, configured %d", ErrCacheMismatch, c.MaxLen, opts.MaxLen)
			}
			return c, nil
		}
	}

	poems, err := ParseDir(opts)
	if err != nil {
		return nil, err
	}
	c, err := Build(poems, opts.MaxLen)
	if err != nil {
		return nil, err
	}

	if cachePath != "" {
		if err := c.Save(cachePath); err != nil {
			return nil, err
		}
	}
	return c, nil
}
