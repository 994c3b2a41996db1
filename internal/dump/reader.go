package dump

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/wegman-software/osm-admin/internal/logger"
	"github.com/wegman-software/osm-admin/internal/record"
	"github.com/wegman-software/osm-admin/internal/schema"
)

// EndOfData is the line that terminates a COPY data file.
const EndOfData = `\.`

// Reader streams the records of one table file. It is forward only; reopen
// the table to read it again.
//
// Rows that fail to decode are logged and skipped.
type Reader struct {
	def    TableDef
	f      *os.File
	br     *bufio.Reader
	decode record.Decoder
	log    *zap.Logger

	rec     record.Record
	line    int64
	skipped int64
	done    bool
	err     error
}

// NewReader opens def for reading. The decoder is resolved here, so an
// unknown table or a missing column fails before any row is read.
func NewReader(def TableDef, log *zap.Logger) (*Reader, error) {
	decode, err := record.NewDecoder(def.Name, def.Columns)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(def.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s data: %w", def.Name, err)
	}

	return &Reader{
		def:    def,
		f:      f,
		br:     bufio.NewReaderSize(f, 1<<20),
		decode: decode,
		log:    logger.Or(log),
	}, nil
}

// Next advances to the next decodable record.
func (r *Reader) Next() bool {
	for !r.done {
		line, err := r.br.ReadString('\n')
		if err != nil && err != io.EOF {
			r.err = fmt.Errorf("failed to read %s: %w", r.def.Name, err)
			r.done = true
			return false
		}
		if err == io.EOF {
			r.done = true
		}

		line = strings.TrimSuffix(line, "\n")
		if line == "" || strings.HasPrefix(line, EndOfData) {
			r.done = true
			return false
		}
		r.line++

		rec, decErr := r.decode(strings.Split(line, "\t"))
		if decErr != nil {
			r.skipped++
			r.log.Warn("Skipping undecodable row",
				zap.String("table", string(r.def.Name)),
				zap.Int64("line_number", r.line),
				zap.String("line", line),
				zap.Error(decErr))
			continue
		}
		r.rec = rec
		return true
	}
	return false
}

// Record returns the record read by the last successful Next.
func (r *Reader) Record() record.Record {
	return r.rec
}

// Err returns the first read error. Skipped rows are not errors.
func (r *Reader) Err() error {
	return r.err
}

// Skipped returns the number of rows dropped because they did not decode.
func (r *Reader) Skipped() int64 {
	return r.skipped
}

func (r *Reader) Close() error {
	return r.f.Close()
}

// TableReader narrows a Reader to the record type of its table.
type TableReader[T record.Record] struct {
	*Reader
	cur T
}

// OpenTable opens the table name of a and checks that it decodes into T.
func OpenTable[T record.Record](a *Archive, name schema.Table, log *zap.Logger) (*TableReader[T], error) {
	proto, err := record.Prototype(name)
	if err != nil {
		return nil, err
	}
	if _, ok := proto.(T); !ok {
		var want T
		return nil, fmt.Errorf("table %s decodes %T, not %T", name, proto, want)
	}

	def, err := a.Table(name)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(def, log)
	if err != nil {
		return nil, err
	}
	return &TableReader[T]{Reader: r}, nil
}

func (t *TableReader[T]) Next() bool {
	if !t.Reader.Next() {
		return false
	}
	t.cur = t.Reader.Record().(T)
	return true
}

// Value returns the current typed record.
func (t *TableReader[T]) Value() T {
	return t.cur
}
