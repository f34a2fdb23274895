package pretrained

import (
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/gomlx/go-slotembed/internal/files"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Format of a pretrained vectors file.
type Format int

const (
	// FormatText is one word per line followed by its values, separated by spaces (GloVe). An
	// optional "<count> <dim>" first line (fastText ".vec") is skipped.
	FormatText Format = iota

	// FormatWord2Vec is the binary format of the original word2vec tool.
	FormatWord2Vec

	// FormatSafetensors is a 2D float tensor in a ".safetensors" file, with the words listed in
	// the "tokens" metadata entry or in a separate vocabulary file.
	FormatSafetensors
)

// NoneName disables pretrained vectors.
const NoneName = "none"

// Family is a named collection of pretrained vector files, one per available dimension.
type Family struct {
	Name   string
	Format Format

	// Dims lists the available dimensions. Empty means any dimension (the file decides).
	Dims []int

	// FilePattern is the file name in the cache directory, formatted with the dimension if it
	// contains a "%d" verb. Empty if the family requires an explicit Source.Path.
	FilePattern string
}

// FileName returns the file name of the family's table of dimension dim.
func (f Family) FileName(dim int) string {
	if f.FilePattern == "" {
		return ""
	}
	if strings.Contains(f.FilePattern, "%d") {
		return fmt.Sprintf(f.FilePattern, dim)
	}
	return f.FilePattern
}

// Families lists the known pretrained families, by name.
var Families = map[string]Family{
	"glove.6B":            {Name: "glove.6B", Format: FormatText, Dims: []int{50, 100, 200, 300}, FilePattern: "glove.6B.%dd.txt"},
	"glove.42B":           {Name: "glove.42B", Format: FormatText, Dims: []int{300}, FilePattern: "glove.42B.300d.txt"},
	"glove.840B":          {Name: "glove.840B", Format: FormatText, Dims: []int{300}, FilePattern: "glove.840B.300d.txt"},
	"glove.twitter.27B":   {Name: "glove.twitter.27B", Format: FormatText, Dims: []int{25, 50, 100, 200}, FilePattern: "glove.twitter.27B.%dd.txt"},
	"fasttext.wiki-news":  {Name: "fasttext.wiki-news", Format: FormatText, Dims: []int{300}, FilePattern: "wiki-news-300d-1M.vec"},
	"fasttext.crawl":      {Name: "fasttext.crawl", Format: FormatText, Dims: []int{300}, FilePattern: "crawl-300d-2M.vec"},
	"word2vec.googlenews": {Name: "word2vec.googlenews", Format: FormatWord2Vec, Dims: []int{300}, FilePattern: "GoogleNews-vectors-negative300.bin"},
	"text":                {Name: "text", Format: FormatText},
	"word2vec":            {Name: "word2vec", Format: FormatWord2Vec},
	"safetensors":         {Name: "safetensors", Format: FormatSafetensors},
}

// Source selects a pretrained table.
type Source struct {
	// Name of the family, e.g. "glove.6B", or "none". The dimension may be appended as in
	// "glove.6B.100d".
	Name string `yaml:"name"`

	// Path to the vectors file. If empty, the family's file name is looked up in Dir.
	Path string `yaml:"path,omitempty"`

	// Dir is the cache directory holding the families' files.
	Dir string `yaml:"dir,omitempty"`

	// VocabPath lists the words of a safetensors table, one per line, if the file has no
	// "tokens" metadata.
	VocabPath string `yaml:"vocab_path,omitempty"`

	// TensorName is the tensor holding the vectors in a safetensors file. Defaults to
	// DefaultTensorName, or to the only tensor of the file.
	TensorName string `yaml:"tensor_name,omitempty"`
}

// IsNone returns whether the source disables pretrained vectors.
func (s Source) IsNone() bool {
	return s.Name == "" || s.Name == NoneName
}

var dimSuffixRe = regexp.MustCompile(`^(.+)\.(\d+)d$`)

// Resolve returns the family of the source and the path of its file for dimension dim.
// It fails with ErrUnknownSource for unknown names or unavailable dimensions, without touching
// the file system.
func Resolve(s Source, dim int) (Family, string, error) {
	name := s.Name
	family, found := Families[name]
	if !found {
		// Accept "<family>.<dim>d".
		if m := dimSuffixRe.FindStringSubmatch(name); m != nil {
			family, found = Families[m[1]]
			if found {
				nameDim, _ := strconv.Atoi(m[2])
				if dim != 0 && dim != nameDim {
					return Family{}, "", errors.Wrapf(ErrDimensionMismatch,
						"pretrained source %q doesn't match embedding dimension %d", name, dim)
				}
				dim = nameDim
			}
		}
	}
	if !found {
		return Family{}, "", errors.Wrapf(ErrUnknownSource, "pretrained source %q", name)
	}
	if len(family.Dims) > 0 && !slices.Contains(family.Dims, dim) {
		return Family{}, "", errors.Wrapf(ErrUnknownSource,
			"pretrained source %q has no %d-dimensional vectors (available: %v)", name, dim, family.Dims)
	}
	path := s.Path
	if path == "" {
		fileName := family.FileName(dim)
		if fileName == "" {
			return Family{}, "", errors.Errorf("pretrained source %q requires an explicit path", name)
		}
		path = filepath.Join(s.Dir, fileName)
	}
	return family, files.ExpandHome(path), nil
}

// Open resolves the source and loads its table of dimension dim.
//
// If keep is not nil, only words for which it returns true are loaded (text tables only), which
// saves memory when the vocabulary is known in advance.
func Open(s Source, dim int, keep func(word string) bool) (Table, error) {
	family, path, err := Resolve(s, dim)
	if err != nil {
		return nil, err
	}
	if !files.Exists(path) {
		return nil, errors.Errorf("pretrained vectors file %q for source %q not found", path, s.Name)
	}
	var table Table
	switch family.Format {
	case FormatText:
		table, err = ReadText(path, keep)
	case FormatWord2Vec:
		table, err = ReadWord2Vec(path)
	case FormatSafetensors:
		table, err = ReadSafetensors(path, s.TensorName, s.VocabPath)
	default:
		err = errors.Wrapf(ErrUnknownSource, "format %d of source %q", family.Format, s.Name)
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "loading pretrained source %q", s.Name)
	}
	if dim != 0 && table.Dim() != dim {
		return nil, errors.Wrapf(ErrDimensionMismatch, "%q has %d-dimensional vectors, expected %d", path, table.Dim(), dim)
	}
	klog.Infof("loaded pretrained source %q from %q (dim=%d)", s.Name, path, table.Dim())
	return table, nil
}
