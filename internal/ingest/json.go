package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/KaramelBytes/datasage-cli/internal/profile"
)

type jsonReader struct{}

func (jsonReader) CanRead(filename string) bool { return hasExt(filename, ".json") }

func (jsonReader) Read(path string, opt Options) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open json: %w", err)
	}
	defer f.Close()
	return readJSONRecords(bufio.NewReader(f), opt)
}

// readJSONRecords reads a top-level array of objects. Columns are ordered by
// first appearance across records; keys absent from a record read as missing.
func readJSONRecords(src io.Reader, opt Options) (*Result, error) {
	dec := json.NewDecoder(src)
	dec.UseNumber()
	if err := expectDelim(dec, '['); err != nil {
		return nil, err
	}
	maxRows := opt.MaxRows
	if maxRows <= 0 {
		maxRows = int(^uint(0) >> 1)
	}
	res := &Result{Dataset: &profile.Dataset{}}
	seen := map[string]struct{}{}
	for dec.More() {
		if err := expectDelim(dec, '{'); err != nil {
			return nil, fmt.Errorf("record %d: %w", res.TotalRows+1, err)
		}
		row := profile.Row{}
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("record %d: read key: %w", res.TotalRows+1, err)
			}
			key, ok := tok.(string)
			if !ok {
				return nil, fmt.Errorf("record %d: unexpected token %v", res.TotalRows+1, tok)
			}
			var v any
			if err := dec.Decode(&v); err != nil {
				return nil, fmt.Errorf("record %d: decode %q: %w", res.TotalRows+1, key, err)
			}
			if _, ok := seen[key]; !ok {
				seen[key] = struct{}{}
				res.Dataset.Columns = append(res.Dataset.Columns, key)
			}
			row[key] = profile.FromAny(v)
		}
		if err := expectDelim(dec, '}'); err != nil {
			return nil, err
		}
		res.TotalRows++
		if len(res.Dataset.Rows) >= maxRows {
			res.Truncated = true
			continue
		}
		res.Dataset.Rows = append(res.Dataset.Rows, row)
	}
	if err := expectDelim(dec, ']'); err != nil {
		return nil, err
	}
	if res.Truncated {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("only the first %d of %d records were read", len(res.Dataset.Rows), res.TotalRows))
	}
	return res, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read json: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("read json: expected %q, got %v", want, tok)
	}
	return nil
}
