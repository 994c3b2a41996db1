package dump

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/wegman-software/osm-admin/internal/record"
)

// Writer writes rows of one table file in its declared column order and
// ends the file with the end-of-data line on Close.
type Writer struct {
	def  TableDef
	f    *os.File
	w    *bufio.Writer
	rows int64
}

func NewWriter(def TableDef) (*Writer, error) {
	f, err := os.Create(def.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s data: %w", def.Name, err)
	}
	return &Writer{
		def: def,
		f:   f,
		w:   bufio.NewWriterSize(f, 1<<20),
	}, nil
}

// Def returns the table this writer produces.
func (w *Writer) Def() TableDef {
	return w.def
}

// NewRow returns an all-NULL row as wide as the table.
func (w *Writer) NewRow() record.Row {
	return record.NewRow(len(w.def.Columns))
}

func (w *Writer) WriteRow(row record.Row) error {
	if len(row) != len(w.def.Columns) {
		return fmt.Errorf("%s: row has %d columns, table declares %d", w.def.Name, len(row), len(w.def.Columns))
	}
	if _, err := w.w.WriteString(strings.Join(row, "\t")); err != nil {
		return fmt.Errorf("failed to write %s: %w", w.def.Name, err)
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write %s: %w", w.def.Name, err)
	}
	w.rows++
	return nil
}

// Rows returns the number of rows written.
func (w *Writer) Rows() int64 {
	return w.rows
}

func (w *Writer) Flush() error {
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", w.def.Name, err)
	}
	return nil
}

func (w *Writer) Close() error {
	if _, err := w.w.WriteString(EndOfData + "\n"); err != nil {
		w.f.Close()
		return fmt.Errorf("failed to terminate %s: %w", w.def.Name, err)
	}
	if err := w.Flush(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}
