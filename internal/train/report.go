package train

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/poet/internal/corpus"
	"github.com/born-ml/poet/internal/generate"
	"github.com/born-ml/poet/internal/vocab"
)

// SampleSeeds are the first characters of the poems generated at every
// report.
const SampleSeeds = "春江花月夜凉如水"

// Files written to the log directory.
const (
	LossLog    = "loss.log"
	OriginLog  = "origin_poem"
	SampleLog  = "gen_poem"
	DebugLog   = "debug.log"
	maxOrigins = 16
	poemSep    = "</br>"
)

// report writes the periodic log artifacts for the batch just trained.
func (t *Trainer[B]) report(epoch, index int, batch corpus.Batch) error {
	dir := t.cfg.LogDir

	if err := appendFile(filepath.Join(dir, LossLog), fmt.Sprintf("%d %d %.6f\n", epoch, index+1, t.meter.mean())); err != nil {
		return err
	}

	origins, err := t.originPoems(batch)
	if err != nil {
		return err
	}
	if err := appendFile(filepath.Join(dir, OriginLog), origins+"\n"); err != nil {
		return err
	}

	samples, err := t.samplePoems()
	if err != nil {
		return err
	}
	if err := appendFile(filepath.Join(dir, SampleLog), samples+"\n"); err != nil {
		return err
	}

	if t.cfg.DebugFile != "" {
		if _, err := os.Stat(t.cfg.DebugFile); err == nil {
			if err := appendFile(filepath.Join(dir, DebugLog), t.debugNorms(epoch, index)); err != nil {
				return err
			}
		}
	}

	fmt.Fprintf(t.out, "  epoch %d batch %d: loss=%.4f\n", epoch+1, index+1, t.meter.mean())
	return nil
}

// originPoems decodes up to the first 16 ground-truth poems of the batch.
func (t *Trainer[B]) originPoems(batch corpus.Batch) (string, error) {
	n := min(batch.Size(), maxOrigins)
	poems := make([]string, n)
	for i := 0; i < n; i++ {
		text, err := t.corpus.Vocab.Decode(batch.Poems[i])
		if err != nil {
			return "", err
		}
		poems[i] = text
	}
	return strings.Join(poems, poemSep), nil
}

// samplePoems generates one poem per seed character with the current
// weights. The tape is paused so decoding is not recorded. Seeds missing from
// the vocabulary are skipped.
func (t *Trainer[B]) samplePoems() (string, error) {
	tape := t.backend.Tape()
	tape.StopRecording()
	defer tape.StartRecording()

	opts := generate.Options{MaxLen: t.cfg.MaxGenLen}
	var poems []string
	for _, seed := range vocab.Split(SampleSeeds) {
		if _, ok := t.corpus.Vocab.ID(seed); !ok {
			continue
		}
		poem, err := generate.Poem(t.model, t.corpus.Vocab, seed, opts)
		if err != nil {
			return "", fmt.Errorf("sample poem: %w", err)
		}
		poems = append(poems, strings.Join(poem, ""))
	}
	return strings.Join(poems, poemSep), nil
}

// debugNorms formats the L2 norm of every parameter and of its last gradient.
func (t *Trainer[B]) debugNorms(epoch, index int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# epoch %d batch %d\n", epoch, index+1)
	for _, np := range t.model.NamedParameters() {
		raw := np.Param.Tensor().Raw()
		weight := blas32.Nrm2(vector(raw))
		grad := float32(0)
		if g, ok := t.lastGrads[raw]; ok {
			grad = blas32.Nrm2(vector(g))
		}
		fmt.Fprintf(&sb, "%s %.6f %.6f\n", np.Name, weight, grad)
	}
	return sb.String()
}

func appendFile(path, text string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) //nolint:gosec // G304: log dir is user supplied by design
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := f.WriteString(text); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
