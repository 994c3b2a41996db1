package join

import (
	"errors"
	"reflect"
	"testing"
)

type sliceStream[T any] struct {
	items []T
	pos   int
	err   error
}

func (s *sliceStream[T]) Next() bool {
	if s.pos >= len(s.items) {
		return false
	}
	s.pos++
	return true
}

func (s *sliceStream[T]) Value() T   { return s.items[s.pos-1] }
func (s *sliceStream[T]) Err() error { return s.err }

type row struct {
	id   int64
	name string
}

func rowKey(r row) Key { return Key{ID: r.id, Version: 1} }

func collect[P, C any](t *testing.T, j *Join[P, C]) []Joined[P, C] {
	t.Helper()
	var out []Joined[P, C]
	for j.Next() {
		out = append(out, j.Value())
	}
	return out
}

func TestJoinAttachesChildren(t *testing.T) {
	parents := &sliceStream[row]{items: []row{{1, "p1"}, {2, "p2"}, {3, "p3"}}}
	children := &sliceStream[row]{items: []row{{1, "A"}, {1, "B"}, {3, "C"}}}

	j := New[row, row](parents, rowKey, children, rowKey, WithOrderCheck())
	got := collect(t, j)
	if err := j.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}

	want := []Joined[row, row]{
		{Parent: row{1, "p1"}, Children: []row{{1, "A"}, {1, "B"}}},
		{Parent: row{2, "p2"}},
		{Parent: row{3, "p3"}, Children: []row{{3, "C"}}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("joined = %+v, want %+v", got, want)
	}
}

func TestJoinVersionedKeys(t *testing.T) {
	type versioned struct{ id, version int64 }
	key := func(v versioned) Key { return Key{v.id, v.version} }

	parents := &sliceStream[versioned]{items: []versioned{{1, 1}, {1, 2}, {2, 1}}}
	children := &sliceStream[versioned]{items: []versioned{{1, 2}, {2, 1}, {2, 1}}}

	j := New[versioned, versioned](parents, key, children, key)
	got := collect(t, j)
	counts := []int{len(got[0].Children), len(got[1].Children), len(got[2].Children)}
	if !reflect.DeepEqual(counts, []int{0, 1, 2}) {
		t.Errorf("children per parent = %v, want [0 1 2]", counts)
	}
}

func TestJoinOfJoin(t *testing.T) {
	ways := &sliceStream[row]{items: []row{{10, "w"}, {11, "w"}}}
	nodes := &sliceStream[row]{items: []row{{10, "n1"}, {10, "n2"}, {11, "n3"}}}
	tags := &sliceStream[row]{items: []row{{11, "highway"}}}

	inner := New[row, row](ways, rowKey, nodes, rowKey)
	outer := New[Joined[row, row], row](inner, func(j Joined[row, row]) Key { return rowKey(j.Parent) }, tags, rowKey)

	got := collect(t, outer)
	if len(got) != 2 {
		t.Fatalf("got %d ways, want 2", len(got))
	}
	if len(got[0].Parent.Children) != 2 || len(got[0].Children) != 0 {
		t.Errorf("way 10 = %+v", got[0])
	}
	if len(got[1].Parent.Children) != 1 || got[1].Children[0].name != "highway" {
		t.Errorf("way 11 = %+v", got[1])
	}
}

func TestJoinEmptyStreams(t *testing.T) {
	j := New[row, row](&sliceStream[row]{}, rowKey, &sliceStream[row]{items: []row{{1, "x"}}}, rowKey)
	if j.Next() {
		t.Error("Next() on empty parents returned true")
	}

	j = New[row, row](&sliceStream[row]{items: []row{{1, "p"}}}, rowKey, &sliceStream[row]{}, rowKey)
	got := collect(t, j)
	if len(got) != 1 || got[0].Children != nil {
		t.Errorf("joined = %+v", got)
	}
}

func TestJoinDropsOrphans(t *testing.T) {
	parents := &sliceStream[row]{items: []row{{2, "p2"}, {4, "p4"}}}
	children := &sliceStream[row]{items: []row{{1, "x"}, {2, "a"}, {3, "y"}, {4, "b"}}}

	j := New[row, row](parents, rowKey, children, rowKey)
	got := collect(t, j)
	if len(got) != 2 || len(got[0].Children) != 1 || len(got[1].Children) != 1 {
		t.Errorf("joined = %+v", got)
	}
	if j.Orphans() != 2 {
		t.Errorf("Orphans() = %d, want 2", j.Orphans())
	}
}

func TestJoinCountsTrailingOrphans(t *testing.T) {
	tests := []struct {
		name     string
		parents  []row
		children []row
		want     int64
	}{
		{"after last parent", []row{{1, "p1"}}, []row{{1, "a"}, {2, "x"}, {3, "y"}}, 2},
		{"no parents", nil, []row{{1, "x"}, {2, "y"}}, 2},
		{"pending child only", []row{{1, "p1"}, {2, "p2"}}, []row{{5, "x"}}, 1},
		{"none", []row{{1, "p1"}}, []row{{1, "a"}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := New[row, row](&sliceStream[row]{items: tt.parents}, rowKey, &sliceStream[row]{items: tt.children}, rowKey, WithOrderCheck())
			collect(t, j)
			if err := j.Err(); err != nil {
				t.Fatalf("Err() = %v", err)
			}
			if j.Orphans() != tt.want {
				t.Errorf("Orphans() = %d, want %d", j.Orphans(), tt.want)
			}
			if j.Next() || j.Orphans() != tt.want {
				t.Errorf("Next() after the end changed the join: orphans %d", j.Orphans())
			}
		})
	}
}

func TestJoinOrderCheck(t *testing.T) {
	tests := []struct {
		name     string
		parents  []row
		children []row
	}{
		{"parent regression", []row{{2, ""}, {1, ""}}, nil},
		{"duplicate parent", []row{{1, ""}, {1, ""}}, nil},
		{"child regression", []row{{1, ""}, {5, ""}}, []row{{3, ""}, {2, ""}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := New[row, row](&sliceStream[row]{items: tt.parents}, rowKey, &sliceStream[row]{items: tt.children}, rowKey, WithOrderCheck())
			collect(t, j)
			if !errors.Is(j.Err(), ErrUnsorted) {
				t.Errorf("Err() = %v, want ErrUnsorted", j.Err())
			}
		})
	}

	// without the check the same input is joined silently
	j := New[row, row](&sliceStream[row]{items: []row{{2, ""}, {1, ""}}}, rowKey, &sliceStream[row]{}, rowKey)
	if got := collect(t, j); len(got) != 2 || j.Err() != nil {
		t.Errorf("unchecked join = %+v, err %v", got, j.Err())
	}
}

func TestJoinPropagatesStreamErrors(t *testing.T) {
	boom := errors.New("boom")
	j := New[row, row](&sliceStream[row]{items: []row{{1, ""}}}, rowKey, &sliceStream[row]{err: boom}, rowKey)
	if j.Next() {
		t.Error("Next() returned true despite child error")
	}
	if !errors.Is(j.Err(), boom) {
		t.Errorf("Err() = %v, want boom", j.Err())
	}
}
