package corpus

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/poet/internal/vocab"
)

const tangJSON = `[
  {"author": "李白", "title": "静夜思", "paragraphs": ["床前明月光，疑是地上霜。", "举头望明月，低头思故乡。"]},
  {"author": "王维", "title": "鹿柴", "paragraphs": ["空山不见人，但闻人语响。", "返景入深林，复照青苔上。"]},
  {"author": "李白", "title": "杂诗", "paragraphs": ["长风破浪会有时，直挂云帆济沧海。"]}
]`

const songJSON = `[
  {"author": "苏轼", "title": "题西林壁", "paragraphs": ["横看成岭侧成峰，远近高低各不同。"]}
]`

func writeCorpus(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "poet.tang.0.json"), []byte(tangJSON), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "poet.song.0.json"), []byte(songJSON), 0o600))
	return dir
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "床前明月光。", "床前明月光。"},
		{"annotation", "床前（一作看）明月光。", "床前明月光。"},
		{"braces", "床前{注}明月光。", "床前明月光。"},
		{"title marks", "读《离骚》有感。", "读有感。"},
		{"brackets", "[床]前明月光。", "床前明月光。"},
		{"digits and dashes", "床前1明-月2光。", "床前明月光。"},
		{"double stop", "床前明月光。。", "床前明月光。"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cleanText(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDir(t *testing.T) {
	dir := writeCorpus(t)

	poems, err := ParseDir(Options{Dir: dir, Category: "poet.tang"})
	require.NoError(t, err)
	require.Len(t, poems, 3)
	assert.Equal(t, "床前明月光，疑是地上霜。举头望明月，低头思故乡。", poems[0])
}

func TestParseDirAuthorFilter(t *testing.T) {
	dir := writeCorpus(t)

	poems, err := ParseDir(Options{Dir: dir, Category: "poet.tang", Author: "王维"})
	require.NoError(t, err)
	require.Len(t, poems, 1)
	assert.Equal(t, "空山不见人，但闻人语响。返景入深林，复照青苔上。", poems[0])
}

func TestParseDirConstrain(t *testing.T) {
	dir := writeCorpus(t)

	five, err := ParseDir(Options{Dir: dir, Category: "poet.tang", Constrain: 5})
	require.NoError(t, err)
	assert.Len(t, five, 2)

	seven, err := ParseDir(Options{Dir: dir, Category: "poet.tang", Constrain: 7})
	require.NoError(t, err)
	require.Len(t, seven, 1)
	assert.Equal(t, "长风破浪会有时，直挂云帆济沧海。", seven[0])
}

func TestParseDirNoPoems(t *testing.T) {
	dir := writeCorpus(t)

	_, err := ParseDir(Options{Dir: dir, Category: "poet.tang", Author: "杜甫"})
	assert.ErrorIs(t, err, ErrNoPoems)

	_, err = ParseDir(Options{Dir: dir, Category: "poet.yuan"})
	assert.ErrorIs(t, err, ErrNoPoems)
}

func TestParseFileInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "poet.tang.bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := ParseFile(path, Options{})
	assert.Error(t, err)
}

func TestPad(t *testing.T) {
	const pad = int32(9)

	assert.Equal(t, []int32{9, 9, 1, 2, 3}, Pad([]int32{1, 2, 3}, 5, pad))
	assert.Equal(t, []int32{1, 2, 3}, Pad([]int32{1, 2, 3}, 3, pad))
	assert.Equal(t, []int32{1, 2}, Pad([]int32{1, 2, 3}, 2, pad), "long sequences lose their tail")
}

func TestBuild(t *testing.T) {
	c, err := Build([]string{"春江", "江月何年"}, 5)
	require.NoError(t, err)

	require.Equal(t, 2, c.NumPoems())
	assert.Equal(t, 5, c.MaxLen)

	v := c.Vocab
	chun, _ := v.ID("春")
	jiang, _ := v.ID("江")
	assert.Equal(t, []int32{v.PadID(), v.StartID(), chun, jiang, v.EndID()}, c.Poems[0])

	// <START> + 4 chars + <EOP> = 6 > 5: <EOP> is cut off
	assert.Equal(t, v.StartID(), c.Poems[1][0])
	assert.NotContains(t, c.Poems[1], v.EndID())

	for _, p := range c.Poems {
		assert.Len(t, p, 5)
	}
}

func TestBatches(t *testing.T) {
	c, err := Build([]string{"甲", "乙", "丙", "丁", "戊"}, 4)
	require.NoError(t, err)

	batches := c.Batches(2, nil)
	require.Len(t, batches, 3)
	assert.Equal(t, 2, batches[0].Size())
	assert.Equal(t, 1, batches[2].Size(), "partial batch is kept")
	assert.Equal(t, 4, batches[0].Len())
	assert.Equal(t, c.Poems[0], batches[0].Poems[0])

	col := batches[0].Column(1)
	assert.Equal(t, []int32{c.Vocab.StartID(), c.Vocab.StartID()}, col)
}

func TestBatchesShuffleCoversAll(t *testing.T) {
	c, err := Build([]string{"甲", "乙", "丙", "丁", "戊", "己", "庚"}, 4)
	require.NoError(t, err)

	batches := c.Batches(3, rand.New(rand.NewSource(7))) //nolint:gosec // deterministic test shuffle

	seen := make(map[int32]int)
	total := 0
	for _, b := range batches {
		for _, p := range b.Poems {
			seen[p[2]]++
			total++
		}
	}
	assert.Equal(t, 7, total)
	assert.Len(t, seen, 7, "every poem appears exactly once")
}

func TestCacheRoundTrip(t *testing.T) {
	c, err := Build([]string{"床前明月光", "疑是地上霜"}, 8)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "tang.gob")

	require.NoError(t, c.Save(path))

	loaded, err := ReadCache(path)
	require.NoError(t, err)
	assert.Equal(t, c.Vocab.Tokens(), loaded.Vocab.Tokens())
	assert.Equal(t, c.Poems, loaded.Poems)
	assert.Equal(t, 8, loaded.MaxLen)
}

func TestLoadWritesAndReusesCache(t *testing.T) {
	dir := writeCorpus(t)
	cache := filepath.Join(t.TempDir(), "tang.gob")
	opts := Options{Dir: dir, Category: "poet.tang", MaxLen: 32}

	first, err := Load(cache, opts)
	require.NoError(t, err)
	assert.Equal(t, 3, first.NumPoems())
	assert.FileExists(t, cache)

	// Source files are no longer needed once the cache exists.
	opts.Dir = filepath.Join(dir, "missing")
	second, err := Load(cache, opts)
	require.NoError(t, err)
	assert.Equal(t, first.Poems, second.Poems)

	opts.MaxLen = 64
	_, err = Load(cache, opts)
	assert.ErrorIs(t, err, ErrCacheMismatch)
}

func TestBuildRejectsInvalidUTF8(t *testing.T) {
	_, err := Build([]string{"春江", "\xff"}, 5)
	assert.Error(t, err)
}

func TestEncodePoem(t *testing.T) {
	c, err := Build([]string{"春江"}, 6)
	require.NoError(t, err)
	v := c.Vocab

	ids, err := EncodePoem(v, "江春", 6)
	require.NoError(t, err)
	chun, _ := v.ID("春")
	jiang, _ := v.ID("江")
	assert.Equal(t, []int32{v.PadID(), v.PadID(), v.StartID(), jiang, chun, v.EndID()}, ids)

	_, err = EncodePoem(v, "月", 6)
	assert.ErrorIs(t, err, vocab.ErrUnknownChar)
}

func TestReadCacheRejectsOutOfRangeTokens(t *testing.T) {
	c, err := Build([]string{"床前明月光"}, 8)
	require.NoError(t, err)

	for _, id := range []int32{int32(c.Vocab.Size()), -1} {
		bad := &Corpus{Vocab: c.Vocab, Poems: [][]int32{append([]int32(nil), c.Poems[0]...)}, MaxLen: c.MaxLen}
		bad.Poems[0][3] = id
		path := filepath.Join(t.TempDir(), "tang.gob")
		require.NoError(t, bad.Save(path))

		_, err := ReadCache(path)
		require.Error(t, err, "token %d", id)
		assert.Contains(t, err.Error(), "outside vocabulary")
	}
}

func TestLoadVocabIgnoresCachedLength(t *testing.T) {
	dir := writeCorpus(t)
	cache := filepath.Join(t.TempDir(), "tang.gob")
	opts := Options{Dir: dir, Category: "poet.tang", MaxLen: 32}

	first, err := LoadVocab(cache, opts)
	require.NoError(t, err)
	assert.FileExists(t, cache)

	opts.MaxLen = 64
	second, err := LoadVocab(cache, opts)
	require.NoError(t, err)
	assert.Equal(t, first.Tokens(), second.Tokens())
}

func TestLoadedVocabHasReservedTokens(t *testing.T) {
	dir := writeCorpus(t)

	c, err := Load("", Options{Dir: dir, Category: "poet.song", MaxLen: 20})
	require.NoError(t, err)

	tokens := c.Vocab.Tokens()
	n := len(tokens)
	assert.Equal(t, []string{vocab.EndOfPoem, vocab.Start, vocab.Padding}, tokens[n-3:])
}
