package pretrained

import (
	"bytes"
	"os"
	"strconv"
	"strings"

	mmapgo "github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ReadText loads a GloVe or fastText text table: one word per line followed by its values, all
// separated by spaces. A fastText "<count> <dim>" header line is skipped.
//
// The dimension is taken from the first vector line. Words with spaces (present in some GloVe
// releases) are accepted: all fields but the last dim ones form the word. If a word appears more
// than once, the first vector is kept.
//
// If keep is not nil, only words for which keep returns true are loaded.
func ReadText(filePath string, keep func(word string) bool) (*MapTable, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open pretrained vectors %q", filePath)
	}
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat %q", filePath)
	}
	if info.Size() == 0 {
		return nil, errors.Errorf("pretrained vectors file %q is empty", filePath)
	}
	contents, err := mmapgo.Map(f, mmapgo.RDONLY, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to mmap %q", filePath)
	}
	defer func() {
		if err := contents.Unmap(); err != nil {
			klog.Warningf("failed to unmap %q: %v", filePath, err)
		}
	}()
	table, err := parseText(contents, keep)
	if err != nil {
		return nil, errors.WithMessagef(err, "parsing %q", filePath)
	}
	return table, nil
}

// parseText parses the contents of a text table. It copies everything it keeps out of data.
func parseText(data []byte, keep func(word string) bool) (*MapTable, error) {
	var table *MapTable
	lineNum := 0
	skipped := 0
	for len(data) > 0 {
		var line []byte
		if idx := bytes.IndexByte(data, '\n'); idx >= 0 {
			line, data = data[:idx], data[idx+1:]
		} else {
			line, data = data, nil
		}
		lineNum++
		line = bytes.TrimRight(line, " \r")
		if len(line) == 0 {
			continue
		}
		fields := strings.Split(string(line), " ")
		if table == nil {
			if lineNum == 1 && isTextHeader(fields) {
				continue
			}
			if len(fields) < 2 {
				return nil, errors.Errorf("line %d: no vector values", lineNum)
			}
			table = NewMapTable(len(fields) - 1)
		}
		dim := table.Dim()
		if len(fields) < dim+1 {
			return nil, errors.Wrapf(ErrDimensionMismatch, "line %d: %d values, expected %d", lineNum, len(fields)-1, dim)
		}
		wordFields := len(fields) - dim
		word := fields[0]
		if wordFields > 1 {
			word = strings.Join(fields[:wordFields], " ")
		}
		if keep != nil && !keep(word) {
			skipped++
			continue
		}
		if _, found := table.Vectors[word]; found {
			continue
		}
		vector := make([]float32, dim)
		for ii, field := range fields[wordFields:] {
			value, err := strconv.ParseFloat(field, 32)
			if err != nil {
				return nil, errors.Wrapf(err, "line %d: value #%d of %q", lineNum, ii, word)
			}
			vector[ii] = float32(value)
		}
		table.Vectors[word] = vector
	}
	if table == nil {
		return nil, errors.New("no vectors found")
	}
	klog.V(1).Infof("read %d pretrained vectors of dimension %d (%d filtered out)", table.Len(), table.Dim(), skipped)
	return table, nil
}

// isTextHeader returns whether the fields are a fastText "<count> <dim>" header.
func isTextHeader(fields []string) bool {
	if len(fields) != 2 {
		return false
	}
	for _, field := range fields {
		if _, err := strconv.Atoi(field); err != nil {
			return false
		}
	}
	return true
}
