// Package join attaches child rows to their parent rows by merging two
// streams sorted ascending on a shared key.
package join

import (
	"errors"
	"fmt"
)

// ErrUnsorted is returned by an order-checked join when a stream's keys go
// backwards.
var ErrUnsorted = errors.New("stream is not sorted by key")

// Stream is a forward-only sequence in the style of bufio.Scanner.
type Stream[T any] interface {
	Next() bool
	Value() T
	Err() error
}

// Key orders rows by entity id and then version.
type Key struct {
	ID      int64
	Version int64
}

func (k Key) Less(o Key) bool {
	return k.ID < o.ID || (k.ID == o.ID && k.Version < o.Version)
}

func (k Key) String() string {
	return fmt.Sprintf("%d/v%d", k.ID, k.Version)
}

// Joined is one parent with its children in stream order.
type Joined[P, C any] struct {
	Parent   P
	Children []C
}

type options struct {
	checkOrder bool
}

type Option func(*options)

// WithOrderCheck makes the join compare every key with the previous key of
// the same stream and stop with ErrUnsorted on the first regression.
func WithOrderCheck() Option {
	return func(o *options) { o.checkOrder = true }
}

// Join merges a parent stream with a child stream. Both must be sorted
// ascending by key; only one child row is held ahead of the parent being
// built. Children whose key sorts before the current parent, or after the
// last parent, have no parent and are dropped.
//
// A Join is itself a Stream, so its output can be the parent side of
// another join.
type Join[P, C any] struct {
	parents   Stream[P]
	children  Stream[C]
	parentKey func(P) Key
	childKey  func(C) Key
	opts      options

	pending    C
	hasPending bool
	childDone  bool
	done       bool

	lastParent Key
	lastChild  Key
	seenParent bool
	seenChild  bool

	cur     Joined[P, C]
	orphans int64
	err     error
}

func New[P, C any](parents Stream[P], parentKey func(P) Key, children Stream[C], childKey func(C) Key, opts ...Option) *Join[P, C] {
	j := &Join[P, C]{
		parents:   parents,
		children:  children,
		parentKey: parentKey,
		childKey:  childKey,
	}
	for _, o := range opts {
		o(&j.opts)
	}
	return j
}

func (j *Join[P, C]) Next() bool {
	if j.err != nil || j.done {
		return false
	}
	if !j.parents.Next() {
		j.done = true
		if j.err = j.parents.Err(); j.err == nil {
			j.drainChildren()
		}
		return false
	}

	p := j.parents.Value()
	pk := j.parentKey(p)
	if j.opts.checkOrder {
		if j.seenParent && !j.lastParent.Less(pk) {
			j.err = fmt.Errorf("%w: parent key %s after %s", ErrUnsorted, pk, j.lastParent)
			return false
		}
		j.lastParent, j.seenParent = pk, true
	}

	var children []C
	for {
		if !j.hasPending && !j.advanceChild() {
			break
		}
		ck := j.childKey(j.pending)
		if ck.Less(pk) {
			j.orphans++
			j.hasPending = false
			continue
		}
		if ck != pk {
			break
		}
		children = append(children, j.pending)
		j.hasPending = false
	}
	if j.err != nil {
		return false
	}

	j.cur = Joined[P, C]{Parent: p, Children: children}
	return true
}

// drainChildren counts the children left after the last parent as orphans.
func (j *Join[P, C]) drainChildren() {
	for j.hasPending || j.advanceChild() {
		j.orphans++
		j.hasPending = false
	}
}

func (j *Join[P, C]) advanceChild() bool {
	if j.childDone {
		return false
	}
	if !j.children.Next() {
		j.childDone = true
		j.err = j.children.Err()
		return false
	}

	j.pending = j.children.Value()
	j.hasPending = true
	if j.opts.checkOrder {
		ck := j.childKey(j.pending)
		if j.seenChild && ck.Less(j.lastChild) {
			j.err = fmt.Errorf("%w: child key %s after %s", ErrUnsorted, ck, j.lastChild)
			j.hasPending = false
			return false
		}
		j.lastChild, j.seenChild = ck, true
	}
	return true
}

func (j *Join[P, C]) Value() Joined[P, C] {
	return j.cur
}

func (j *Join[P, C]) Err() error {
	return j.err
}

// Orphans returns the number of child rows dropped for lack of a parent.
func (j *Join[P, C]) Orphans() int64 {
	return j.orphans
}
