package ingest

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

type csvReader struct{}

func (csvReader) CanRead(filename string) bool {
	return hasExt(filename, ".csv", ".tsv", ".txt")
}

func (csvReader) Read(path string, opt Options) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return readCSV(f, path, opt)
}

func readCSV(src io.Reader, name string, opt Options) (*Result, error) {
	br := bufio.NewReaderSize(src, 64<<10)
	delim := opt.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(br, name)
	}
	r := csv.NewReader(br)
	r.ReuseRecord = true
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.Comma = delim

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return newTableBuilder(nil, opt).finish(), nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	b := newTableBuilder(header, opt)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", b.res.TotalRows+2, err)
		}
		if len(rec) == 1 && rec[0] == "" && len(header) > 1 {
			continue
		}
		b.add(rec)
	}
	return b.finish(), nil
}

// sniffDelimiter picks the most frequent of comma, semicolon and tab in the
// first line, falling back to the file extension.
func sniffDelimiter(br *bufio.Reader, name string) rune {
	fallback := ','
	if strings.HasSuffix(strings.ToLower(name), ".tsv") {
		fallback = '\t'
	}
	line, err := br.Peek(64 << 10)
	if err != nil && len(line) == 0 {
		return fallback
	}
	if i := strings.IndexByte(string(line), '\n'); i >= 0 {
		line = line[:i]
	}
	best, bestN := fallback, 0
	for _, d := range []rune{',', ';', '\t'} {
		n := strings.Count(string(line), string(d))
		if n > bestN {
			best, bestN = d, n
		}
	}
	return best
}
