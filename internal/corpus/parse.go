package corpus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
)

// rawPoem is one entry of a chinese-poetry JSON file.
type rawPoem struct {
	Author     string   `json:"author"`
	Title      string   `json:"title"`
	Paragraphs []string `json:"paragraphs"`
}

// Annotations and editorial marks removed from poem text, applied in order.
var cleanupPatterns = []*regexp2.Regexp{
	regexp2.MustCompile(`（.*）`, regexp2.None),
	regexp2.MustCompile(`{.*}`, regexp2.None),
	regexp2.MustCompile(`《.*》`, regexp2.None),
	regexp2.MustCompile(`[\]\[]`, regexp2.None),
	regexp2.MustCompile(`[0-9\-]`, regexp2.None),
}

var doubleStop = regexp2.MustCompile(`。。`, regexp2.None)

// cleanText strips annotations, brackets, digits and dashes from a poem and
// collapses doubled full stops.
func cleanText(text string) (string, error) {
	var err error
	for _, re := range cleanupPatterns {
		text, err = re.Replace(text, "", -1, -1)
		if err != nil {
			return "", fmt.Errorf("clean poem text: %w", err)
		}
	}
	text, err = doubleStop.Replace(text, "。", -1, -1)
	if err != nil {
		return "", fmt.Errorf("clean poem text: %w", err)
	}
	return text, nil
}

// sentences splits a paragraph on ， ！ and 。.
func sentences(paragraph string) []string {
	return strings.FieldsFunc(paragraph, func(r rune) bool {
		return r == '，' || r == '！' || r == '。'
	})
}

// accept applies the author and sentence-length filters.
func (o Options) accept(p rawPoem) bool {
	if o.Author != "" && p.Author != o.Author {
		return false
	}
	if o.Constrain <= 0 {
		return true
	}
	for _, para := range p.Paragraphs {
		for _, s := range sentences(para) {
			if utf8.RuneCountInString(s) != o.Constrain {
				return false
			}
		}
	}
	return true
}

// ParseFile reads one JSON file and returns the cleaned poems that pass the
// filters.
func ParseFile(path string, opts Options) ([]string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: corpus path is user supplied by design
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var raw []rawPoem
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	poems := make([]string, 0, len(raw))
	for _, p := range raw {
		if !opts.accept(p) {
			continue
		}
		text, err := cleanText(strings.Join(p.Paragraphs, ""))
		if err != nil {
			return nil, err
		}
		if text != "" {
			poems = append(poems, text)
		}
	}
	return poems, nil
}

// ParseDir reads every file in opts.Dir whose name starts with opts.Category.
// Files are visited in name order.
func ParseDir(opts Options) ([]string, error) {
	entries, err := os.ReadDir(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("read corpus dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), opts.Category) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var poems []string
	for _, name := range names {
		ps, err := ParseFile(filepath.Join(opts.Dir, name), opts)
		if err != nil {
			return nil, err
		}
		poems = append(poems, ps...)
	}
	if len(poems) == 0 {
		return nil, fmt.Errorf("%w in %s (category %q)", ErrNoPoems, opts.Dir, opts.Category)
	}
	return poems, nil
}
