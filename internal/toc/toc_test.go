package toc

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		data string
		want []Entry
	}{
		{
			name: "single table",
			data: "\x00\x01TABLE DATA\x00COPY public.nodes (id, lat, lon) FROM stdin;\n\x00\x08\x004260.dat\x00",
			want: []Entry{{"public.nodes (id, lat, lon)", "4260.dat"}},
		},
		{
			name: "two tables",
			data: "COPY public.users (id, name) FROM stdin;\n..12.dat..COPY public.ways (way_id, version) FROM stdin;\n..13.dat",
			want: []Entry{
				{"public.users (id, name)", "12.dat"},
				{"public.ways (way_id, version)", "13.dat"},
			},
		},
		{
			name: "dat without digits is skipped",
			data: "COPY public.a (x) FROM stdin; blob.dat 77.dat",
			want: []Entry{{"public.a (x)", "77.dat"}},
		},
		{
			name: "directive without file restarts at next directive",
			data: "COPY public.a (x) FROM stdin; COPY public.b (y) FROM stdin; 5.dat",
			want: []Entry{{"public.b (y)", "5.dat"}},
		},
		{
			name: "trailing partial entry is dropped",
			data: "COPY public.a (x) FROM stdin; 1.dat COPY public.b (y) FROM stdin;",
			want: []Entry{{"public.a (x)", "1.dat"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.data))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseNoTables(t *testing.T) {
	inputs := []string{
		"",
		"no directives here",
		"COPY public.nodes (id) FROM stdin;",
		"COPY public.nodes (id) but no clause 1.dat",
	}
	for _, in := range inputs {
		if _, err := Parse([]byte(in)); !errors.Is(err, ErrNoTables) {
			t.Errorf("Parse(%q) error = %v, want ErrNoTables", in, err)
		}
	}
}

func TestParseDefinition(t *testing.T) {
	name, cols, err := ParseDefinition("public.nodes (id, lat, lon)")
	if err != nil {
		t.Fatalf("ParseDefinition() error = %v", err)
	}
	if name != "public.nodes" {
		t.Errorf("name = %q, want public.nodes", name)
	}
	if want := []string{"id", "lat", "lon"}; !reflect.DeepEqual(cols, want) {
		t.Errorf("columns = %v, want %v", cols, want)
	}

	_, cols, err = ParseDefinition(`public.ways (way_id, changeset_id, "timestamp", version)`)
	if err != nil {
		t.Fatalf("ParseDefinition() error = %v", err)
	}
	if want := []string{"way_id", "changeset_id", "timestamp", "version"}; !reflect.DeepEqual(cols, want) {
		t.Errorf("quoted columns = %v, want %v", cols, want)
	}

	for _, bad := range []string{"public.nodes", "public.nodes ()", "public nodes (id)"} {
		if _, _, err := ParseDefinition(bad); err == nil {
			t.Errorf("ParseDefinition(%q) expected error", bad)
		}
	}
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "toc.dat")
	data := "PGDMP\x00COPY public.changesets (id, user_id) FROM stdin;\n\x0042.dat\x00"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	entries, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if len(entries) != 1 || entries[0].File != "42.dat" {
		t.Errorf("ReadFile() = %v", entries)
	}

	empty := filepath.Join(dir, "empty.dat")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFile(empty); !errors.Is(err, ErrNoTables) {
		t.Errorf("ReadFile(empty) error = %v, want ErrNoTables", err)
	}
}
