package dump

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wegman-software/osm-admin/internal/record"
	"github.com/wegman-software/osm-admin/internal/schema"
)

var nodeColumns = "node_id, latitude, longitude, changeset_id, visible, timestamp, tile, version, redaction_id"

// writeToc writes a toc.dat naming one data file per definition.
func writeToc(t *testing.T, dir string, defs map[string]string) {
	t.Helper()
	var b strings.Builder
	b.WriteString("PGDMP\x01\x0e\x00")
	for file, def := range defs {
		fmt.Fprintf(&b, "\x00TABLE DATA\x00COPY %s FROM stdin;\n\x00\x00%s\x00", def, file)
	}
	if err := os.WriteFile(filepath.Join(dir, TocFile), []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
}

func nodeLine(id int, visible string) string {
	return fmt.Sprintf("%d\t1\t2\t3\t%s\t2020-01-01 00:00:00\t0\t1\t\\N", id, visible)
}

func TestReaderSkipsBadRow(t *testing.T) {
	dir := t.TempDir()
	writeToc(t, dir, map[string]string{"100.dat": "public.nodes (" + nodeColumns + ")"})

	var lines []string
	for i := 1; i <= 10; i++ {
		visible := "t"
		if i == 4 {
			visible = "yes"
		}
		lines = append(lines, nodeLine(i, visible))
	}
	data := strings.Join(lines, "\n") + "\n" + EndOfData + "\n\n"
	if err := os.WriteFile(filepath.Join(dir, "100.dat"), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	core, logs := observer.New(zapcore.WarnLevel)
	a, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	r, err := OpenTable[record.Node](a, schema.Nodes, zap.New(core))
	if err != nil {
		t.Fatalf("OpenTable() error = %v", err)
	}
	defer r.Close()

	var ids []int64
	for r.Next() {
		ids = append(ids, r.Value().NodeID)
	}
	if err := r.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}

	if len(ids) != 9 {
		t.Errorf("got %d records, want 9: %v", len(ids), ids)
	}
	for _, id := range ids {
		if id == 4 {
			t.Error("bad row 4 was not skipped")
		}
	}
	if r.Skipped() != 1 {
		t.Errorf("Skipped() = %d, want 1", r.Skipped())
	}
	if logs.Len() != 1 {
		t.Fatalf("got %d warnings, want 1", logs.Len())
	}
	fields := logs.All()[0].ContextMap()
	if fields["table"] != "public.nodes" || fields["line_number"] != int64(4) {
		t.Errorf("warning fields = %v", fields)
	}
}

func TestReaderTerminators(t *testing.T) {
	tests := []struct {
		name string
		data string
		want int
	}{
		{"sentinel", nodeLine(1, "t") + "\n" + EndOfData + "\n" + nodeLine(2, "t") + "\n", 1},
		{"empty line", nodeLine(1, "t") + "\n\n" + nodeLine(2, "t") + "\n", 1},
		{"eof without newline", nodeLine(1, "t") + "\n" + nodeLine(2, "t"), 2},
		{"empty file", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "1.dat")
			if err := os.WriteFile(path, []byte(tt.data), 0o644); err != nil {
				t.Fatal(err)
			}
			def := TableDef{Name: schema.Nodes, Path: path, Columns: strings.Split(nodeColumns, ", ")}
			r, err := NewReader(def, zap.NewNop())
			if err != nil {
				t.Fatal(err)
			}
			defer r.Close()

			n := 0
			for r.Next() {
				n++
			}
			if n != tt.want {
				t.Errorf("read %d records, want %d", n, tt.want)
			}
			if r.Next() {
				t.Error("Next() after exhaustion returned true")
			}
		})
	}
}

func TestOpenTableErrors(t *testing.T) {
	dir := t.TempDir()
	writeToc(t, dir, map[string]string{
		"1.dat": "public.nodes (" + nodeColumns + ")",
		"2.dat": "public.node_tags (node_id, k, v)",
	})
	a, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := OpenTable[record.Way](a, schema.Nodes, nil); err == nil {
		t.Error("expected type mismatch error")
	}
	if _, err := OpenTable[record.Way](a, schema.Ways, nil); !errors.Is(err, ErrMissingTable) {
		t.Errorf("error = %v, want ErrMissingTable", err)
	}
	var missing *schema.MissingColumnError
	if _, err := OpenTable[record.NodeTag](a, schema.NodeTags, nil); !errors.As(err, &missing) {
		t.Errorf("error = %v, want MissingColumnError", err)
	}
}

func TestCreateFromTemplateAndWriter(t *testing.T) {
	template := t.TempDir()
	writeToc(t, template, map[string]string{"7.dat": "public.current_way_tags (way_id, k, v)"})
	if err := os.WriteFile(filepath.Join(template, "restore.sql"), []byte("-- restore"), 0o644); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(t.TempDir(), "nested", "dump")
	a, err := CreateFromTemplate(template, out)
	if err != nil {
		t.Fatalf("CreateFromTemplate() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "restore.sql")); err != nil {
		t.Errorf("template file not copied: %v", err)
	}

	def, err := a.Table(schema.CurrentWayTags)
	if err != nil {
		t.Fatal(err)
	}
	off, err := schema.NewTagFields(def.Name, def.Columns)
	if err != nil {
		t.Fatal(err)
	}

	w, err := NewWriter(def)
	if err != nil {
		t.Fatal(err)
	}
	row := w.NewRow()
	record.Tag{OwnerID: 5, K: "name", V: "Main\tStreet"}.Encode(off, row)
	if err := w.WriteRow(row); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteRow(record.Row{"1"}); err == nil {
		t.Error("expected width mismatch error")
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(def.Path)
	if err != nil {
		t.Fatal(err)
	}
	want := "5\tname\tMain\\tStreet\n\\.\n"
	if string(got) != want {
		t.Errorf("file = %q, want %q", got, want)
	}
	if w.Rows() != 1 {
		t.Errorf("Rows() = %d, want 1", w.Rows())
	}
}
