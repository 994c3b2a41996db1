// Package dump reads and writes the per-table data files of a
// directory-format apidb dump.
package dump

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/wegman-software/osm-admin/internal/schema"
	"github.com/wegman-software/osm-admin/internal/toc"
)

// TocFile is the table-of-contents file name inside a dump directory.
const TocFile = "toc.dat"

// ErrMissingTable is returned when the toc has no data entry for a table.
var ErrMissingTable = errors.New("table not present in dump")

// TableDef locates one table's data file and its declared column order.
type TableDef struct {
	Name    schema.Table
	Path    string
	Columns []string
}

// Archive is an opened dump directory.
type Archive struct {
	Dir    string
	tables map[schema.Table]TableDef
}

// Open parses dir/toc.dat into table definitions.
func Open(dir string) (*Archive, error) {
	entries, err := toc.ReadFile(filepath.Join(dir, TocFile))
	if err != nil {
		return nil, err
	}

	a := &Archive{Dir: dir, tables: make(map[schema.Table]TableDef, len(entries))}
	for _, e := range entries {
		name, cols, err := toc.ParseDefinition(e.Definition)
		if err != nil {
			return nil, err
		}
		a.tables[schema.Table(name)] = TableDef{
			Name:    schema.Table(name),
			Path:    filepath.Join(dir, e.File),
			Columns: cols,
		}
	}
	return a, nil
}

// Table returns the definition of name.
func (a *Archive) Table(name schema.Table) (TableDef, error) {
	def, ok := a.tables[name]
	if !ok {
		return TableDef{}, fmt.Errorf("%s: %w: %s", a.Dir, ErrMissingTable, name)
	}
	return def, nil
}

// Len returns the number of tables with data entries.
func (a *Archive) Len() int {
	return len(a.tables)
}

// CreateFromTemplate copies the files of templateDir into outputDir,
// creating it if needed, and opens the result.
func CreateFromTemplate(templateDir, outputDir string) (*Archive, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	entries, err := os.ReadDir(templateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read template directory: %w", err)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		src := filepath.Join(templateDir, e.Name())
		dst := filepath.Join(outputDir, e.Name())
		if err := copyFile(src, dst); err != nil {
			return nil, fmt.Errorf("copy %s -> %s: %w", src, dst, err)
		}
	}

	return Open(outputDir)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
