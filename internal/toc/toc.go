// Package toc extracts table definitions and data file names from the
// toc.dat table-of-contents of a PostgreSQL directory-format dump.
package toc

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/edsrzf/mmap-go"
)

var (
	copyMarker  = []byte("COPY ")
	stdinMarker = []byte(" FROM stdin")
	datMarker   = []byte(".dat")
)

// ErrNoTables is returned when the toc holds no complete COPY directive.
var ErrNoTables = errors.New("toc: no table data entries found")

var definitionRe = regexp.MustCompile(`^([^ ]+) \((.+)\)$`)

// Entry is one COPY directive of the toc: the table definition as written
// ("public.nodes (id, lat, lon)") and the name of its data file ("4260.dat").
type Entry struct {
	Definition string
	File       string
}

// Parse scans the raw toc bytes for COPY directives. Only entries where the
// directive, its FROM stdin clause and a following "<digits>.dat" file name
// are all present are returned; an incomplete trailing match is dropped.
func Parse(data []byte) ([]Entry, error) {
	var entries []Entry
	pos := 0
	for {
		start := bytes.Index(data[pos:], copyMarker)
		if start < 0 {
			break
		}
		defStart := pos + start + len(copyMarker)

		end := bytes.Index(data[defStart:], stdinMarker)
		if end < 0 {
			break
		}
		defEnd := defStart + end
		definition := string(data[defStart:defEnd])

		file, next, ok := findDataFile(data, defEnd+len(stdinMarker))
		if !ok {
			break
		}
		// a COPY between the clause and the file name means this directive
		// never got a data file, so restart from the newer one
		if restart := bytes.Index(data[defEnd:next], copyMarker); restart >= 0 {
			pos = defEnd + restart
			continue
		}

		entries = append(entries, Entry{Definition: definition, File: file})
		pos = next
	}

	if len(entries) == 0 {
		return nil, ErrNoTables
	}
	return entries, nil
}

// findDataFile returns the first "<digits>.dat" name at or after from, and
// the offset just past it.
func findDataFile(data []byte, from int) (string, int, bool) {
	for from < len(data) {
		idx := bytes.Index(data[from:], datMarker)
		if idx < 0 {
			return "", 0, false
		}
		end := from + idx
		begin := end
		for begin > from && data[begin-1] >= '0' && data[begin-1] <= '9' {
			begin--
		}
		if begin < end {
			return string(data[begin:end]) + string(datMarker), end + len(datMarker), true
		}
		from = end + len(datMarker)
	}
	return "", 0, false
}

// ParseDefinition splits "public.nodes (id, lat, lon)" into the table name
// and its ordered column list. Quoted identifiers such as "timestamp" are
// unquoted.
func ParseDefinition(def string) (string, []string, error) {
	m := definitionRe.FindStringSubmatch(def)
	if m == nil {
		return "", nil, fmt.Errorf("toc: malformed table definition %q", def)
	}
	cols := strings.Split(m[2], ", ")
	for i, c := range cols {
		cols[i] = unquoteIdent(c)
	}
	return m[1], cols, nil
}

func unquoteIdent(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return strings.ReplaceAll(s[1:len(s)-1], `""`, `"`)
	}
	return s
}

// ReadFile memory-maps the toc at path and parses it.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open toc: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat toc: %w", err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoTables)
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap toc: %w", err)
	}
	defer m.Unmap()

	entries, err := Parse(m)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}
