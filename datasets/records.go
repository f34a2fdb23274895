package datasets

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomlx/go-slotembed/internal/files"
	"github.com/gomlx/go-slotembed/tokenizers"
	"github.com/gomlx/go-slotembed/tokenizers/api"
	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Record is one tokenized example of a corpus. Fields the dataset doesn't have are left empty.
type Record struct {
	Utterance []string

	// Labels are the slot labels, one per utterance token.
	Labels []string

	// Delex is the delexicalized utterance, where slot values are replaced by "_<slot>_" placeholders.
	Delex []string

	Intent string
}

// Options for reading a corpus.
type Options struct {
	// Tokenizer splits the utterance and delexicalized columns. Labels are always split on spaces.
	Tokenizer api.Tokenizer

	// Lowercase the utterance and delexicalized tokens (labels and intents are kept as is).
	Lowercase bool
}

// Reader converts the rows of one dataset into Records.
type Reader struct {
	Schema  Schema
	Options Options
}

// NewReader returns a Reader for the schema. It fails if no tokenizer is given.
func NewReader(schema Schema, opts Options) (*Reader, error) {
	if schema < 0 || schema >= SchemaCount {
		return nil, errors.Wrapf(ErrUnknownDataset, "%s", schema)
	}
	if opts.Tokenizer == nil {
		return nil, errors.New("datasets reader requires a tokenizer")
	}
	return &Reader{Schema: schema, Options: opts}, nil
}

// Load reads a corpus file: Parquet if it has a ".parquet" extension, CSV otherwise.
func (r *Reader) Load(filePath string) ([]Record, error) {
	filePath = files.ExpandHome(filePath)
	var records []Record
	var err error
	if strings.EqualFold(filepath.Ext(filePath), ".parquet") {
		records, err = r.ReadParquet(filePath)
	} else {
		var f *os.File
		f, err = os.Open(filePath)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open corpus %q", filePath)
		}
		records, err = r.ReadCSV(f)
		_ = f.Close()
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "reading %s corpus %q", r.Schema, filePath)
	}
	klog.V(1).Infof("read %d records from %q", len(records), filePath)
	return records, nil
}

// ReadCSV reads CSV rows laid out as the Reader's schema.
func (r *Reader) ReadCSV(in io.Reader) ([]Record, error) {
	layout := r.Schema.Layout()
	csvReader := csv.NewReader(in)
	csvReader.FieldsPerRecord = len(layout.Columns)
	csvReader.LazyQuotes = true
	var records []Record
	for rowNum := 0; ; rowNum++ {
		row, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to read CSV row")
		}
		if rowNum == 0 && layout.SkipHeader {
			continue
		}
		var fields [numFields]string
		for col, field := range layout.Columns {
			fields[field] = row[col]
		}
		records = append(records, r.makeRecord(fields))
	}
	return records, nil
}

// ParquetRow is a corpus row in a Parquet file. Columns are matched by name; the ones the schema
// doesn't use are ignored.
type ParquetRow struct {
	Utterance     string `parquet:"utterance"`
	Labels        string `parquet:"labels"`
	Delexicalised string `parquet:"delexicalised"`
	Intent        string `parquet:"intent"`
}

// ReadParquet reads a Parquet corpus with ParquetRow columns.
func (r *Reader) ReadParquet(filePath string) ([]Record, error) {
	rows, err := parquet.ReadFile[ParquetRow](filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read parquet file %q", filePath)
	}
	layout := r.Schema.Layout()
	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		var fields [numFields]string
		fields[FieldUtterance] = row.Utterance
		if layout.Has(FieldIntent) {
			fields[FieldIntent] = row.Intent
		}
		if layout.Has(FieldLabels) {
			fields[FieldLabels] = row.Labels
		}
		if layout.Has(FieldDelex) {
			fields[FieldDelex] = row.Delexicalised
		}
		records = append(records, r.makeRecord(fields))
	}
	return records, nil
}

// WriteParquet writes records as ParquetRow rows, joining tokens with spaces.
func WriteParquet(filePath string, records []Record) error {
	rows := make([]ParquetRow, len(records))
	for ii, record := range records {
		rows[ii] = ParquetRow{
			Utterance:     strings.Join(record.Utterance, " "),
			Labels:        strings.Join(record.Labels, " "),
			Delexicalised: strings.Join(record.Delex, " "),
			Intent:        record.Intent,
		}
	}
	if err := parquet.WriteFile(filePath, rows); err != nil {
		return errors.Wrapf(err, "failed to write parquet file %q", filePath)
	}
	return nil
}

func (r *Reader) makeRecord(fields [numFields]string) Record {
	record := Record{
		Utterance: r.tokenize(fields[FieldUtterance]),
		Delex:     r.tokenize(fields[FieldDelex]),
		Intent:    strings.TrimSpace(fields[FieldIntent]),
	}
	if labels := strings.Fields(fields[FieldLabels]); len(labels) > 0 {
		record.Labels = labels
	}
	return record
}

func (r *Reader) tokenize(text string) []string {
	if text == "" {
		return nil
	}
	tokens := r.Options.Tokenizer.Tokenize(text)
	if r.Options.Lowercase {
		tokens = tokenizers.Lower(tokens)
	}
	return tokens
}
