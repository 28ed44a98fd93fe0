// Package grid reads and writes grid files verbatim: every cell is text and
// ragged rows are kept as they are.
package grid

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/starford/skeletab/internal/models"
	"github.com/starford/skeletab/internal/storage"
)

// Read loads the grid at path. The first record is the header; an empty file
// yields an empty header and no rows.
func Read(path string) (*models.Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("grid: open %s: %w", path, err)
	}
	defer f.Close()

	g, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("grid: read %s: %w", path, err)
	}
	return g, nil
}

// Decode parses CSV records from r. Blank lines come back as empty rows, so
// row indices stay stable across a write and read. A blank first line is an
// empty header.
func Decode(r io.Reader) (*models.Grid, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var records [][]string
	next := 1       // line where the next record would start
	end := int64(0) // offset just past the last record
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		// csv.Reader drops blank lines; recover them from the record position.
		start, _ := cr.FieldPos(0)
		for ; next < start; next++ {
			records = append(records, []string{})
		}
		records = append(records, rec)
		end = cr.InputOffset()
		next = bytes.Count(data[:end], newline) + 1
	}
	for range bytes.Count(data[end:], newline) {
		records = append(records, []string{})
	}

	g := &models.Grid{Header: []string{}, Rows: [][]string{}}
	if len(records) > 0 {
		g.Header = records[0]
		g.Rows = append(g.Rows, records[1:]...)
	}
	return g, nil
}

var newline = []byte{'\n'}

// Encode renders the header followed by each row. A record holding a single
// empty cell is written as "" so it does not collapse into a blank line.
func Encode(g *models.Grid) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	cw.UseCRLF = true
	write := func(rec []string) error {
		if len(rec) == 1 && rec[0] == "" {
			cw.Flush()
			_, err := buf.WriteString("\"\"\r\n")
			return err
		}
		return cw.Write(nonNil(rec))
	}
	if err := write(g.Header); err != nil {
		return nil, err
	}
	for _, row := range g.Rows {
		if err := write(row); err != nil {
			return nil, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write replaces the grid at path. Readers never observe a partial file.
func Write(path string, g *models.Grid) error {
	data, err := Encode(g)
	if err != nil {
		return fmt.Errorf("grid: encode: %w", err)
	}
	if err := storage.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("grid: write %s: %w", path, err)
	}
	return nil
}

func nonNil(rec []string) []string {
	if rec == nil {
		return []string{}
	}
	return rec
}
