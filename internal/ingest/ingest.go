package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/KaramelBytes/datasage-cli/internal/profile"
)

// ErrUnsupportedFormat is returned when no reader accepts the file extension.
var ErrUnsupportedFormat = errors.New("unsupported dataset format")

// Options controls how files are read into a dataset.
type Options struct {
	MaxRows            int  // 0 = unlimited
	Delimiter          rune // CSV only; 0 = sniff
	DecimalSeparator   rune // '.' or ','; 0 = strict parsing only
	ThousandsSeparator rune // ',', '.', ' ', or 0
	SheetName          string
	SheetIndex         int // 1-based, used when SheetName is empty
}

// DefaultOptions returns sensible defaults for ingestion.
func DefaultOptions() Options {
	return Options{MaxRows: 100000, SheetIndex: 1}
}

// Result is a loaded dataset plus what happened while reading it.
type Result struct {
	Dataset   *profile.Dataset
	TotalRows int // data rows seen in the source, including any beyond MaxRows
	Truncated bool
	Warnings  []string
}

// Reader loads one file format.
type Reader interface {
	CanRead(filename string) bool
	Read(path string, opt Options) (*Result, error)
}

var registry []Reader

// Register adds a reader to the registry.
func Register(r Reader) {
	registry = append(registry, r)
}

// Load selects a reader by file name and reads the dataset.
func Load(path string, opt Options) (*Result, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat dataset: %w", err)
	}
	for _, r := range registry {
		if r.CanRead(path) {
			res, err := r.Read(path, opt)
			if err != nil {
				return nil, err
			}
			res.Dataset.Name = filepath.Base(path)
			return res, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
}

// Supported reports whether some registered reader accepts the file.
func Supported(path string) bool {
	for _, r := range registry {
		if r.CanRead(path) {
			return true
		}
	}
	return false
}

func init() {
	Register(csvReader{})
	Register(xlsxReader{})
	Register(jsonReader{})
}

func hasExt(name string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// normalizeHeader trims names, fills blanks with "Unnamed: i" and suffixes
// repeats with ".1", ".2", ...
func normalizeHeader(raw []string) []string {
	out := make([]string, len(raw))
	seen := make(map[string]int, len(raw))
	for i, h := range raw {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		if _, dup := seen[name]; dup {
			base, n := name, seen[name]
			for {
				n++
				name = fmt.Sprintf("%s.%d", base, n)
				if _, taken := seen[name]; !taken {
					break
				}
			}
			seen[base] = n
		}
		seen[name] = 0
		out[i] = name
	}
	return out
}

// tableBuilder turns string records into dataset rows.
type tableBuilder struct {
	opt     Options
	res     *Result
	ragged  int
	maxRows int
	// padShort accepts short records silently; spreadsheets drop trailing
	// empty cells.
	padShort bool
}

func newTableBuilder(header []string, opt Options) *tableBuilder {
	maxRows := opt.MaxRows
	if maxRows <= 0 {
		maxRows = int(^uint(0) >> 1)
	}
	return &tableBuilder{
		opt:     opt,
		maxRows: maxRows,
		res:     &Result{Dataset: &profile.Dataset{Columns: normalizeHeader(header)}},
	}
}

// add appends one record. It returns false once MaxRows is reached so callers
// can stop early when they do not need an exact total.
func (b *tableBuilder) add(rec []string) bool {
	b.res.TotalRows++
	if len(b.res.Dataset.Rows) >= b.maxRows {
		b.res.Truncated = true
		return false
	}
	cols := b.res.Dataset.Columns
	if len(rec) > len(cols) || (len(rec) < len(cols) && !b.padShort) {
		b.ragged++
	}
	row := make(profile.Row, len(cols))
	for i, c := range cols {
		cell := ""
		if i < len(rec) {
			cell = rec[i]
		}
		row[c] = b.cell(cell)
	}
	b.res.Dataset.Rows = append(b.res.Dataset.Rows, row)
	return true
}

func (b *tableBuilder) cell(s string) profile.Value {
	v := profile.ParseValue(s)
	if v.Kind == profile.KindText && b.opt.DecimalSeparator != 0 {
		if f, ok := parseLocaleNumber(s, b.opt); ok {
			return profile.Number(f, s)
		}
	}
	return v
}

func (b *tableBuilder) finish() *Result {
	if b.ragged > 0 {
		b.res.Warnings = append(b.res.Warnings,
			fmt.Sprintf("%d rows did not match the header width and were padded or truncated", b.ragged))
	}
	if b.res.Truncated {
		b.res.Warnings = append(b.res.Warnings,
			fmt.Sprintf("only the first %d of %d rows were read", len(b.res.Dataset.Rows), b.res.TotalRows))
	}
	return b.res
}
