package dedup

import (
	"encoding/binary"
	"fmt"
)

// Users maps user id to display name.
type Users struct {
	ix *Index
}

func OpenUsers(tempDir string, bufferSize int) (*Users, error) {
	ix, err := Open(tempDir, "users", bufferSize)
	if err != nil {
		return nil, err
	}
	return &Users{ix: ix}, nil
}

func (u *Users) Put(id int64, name string) error {
	return u.ix.Put(id, []byte(name))
}

func (u *Users) Get(id int64) (string, bool, error) {
	v, ok, err := u.ix.Get(id)
	return string(v), ok, err
}

// Range visits users in ascending id order and returns how many there were.
func (u *Users) Range(fn func(id int64, name string) error) (int64, error) {
	var n int64
	err := u.ix.Range(func(k int64, v []byte) error {
		n++
		return fn(k, string(v))
	})
	return n, err
}

func (u *Users) Close() error {
	return u.ix.Close()
}

// Changesets maps changeset id to the id of the user who opened it.
type Changesets struct {
	ix *Index
}

func OpenChangesets(tempDir string, bufferSize int) (*Changesets, error) {
	ix, err := Open(tempDir, "changesets", bufferSize)
	if err != nil {
		return nil, err
	}
	return &Changesets{ix: ix}, nil
}

func (c *Changesets) Put(id, userID int64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(userID))
	return c.ix.Put(id, b[:])
}

func (c *Changesets) Get(id int64) (int64, bool, error) {
	v, ok, err := c.ix.Get(id)
	if err != nil || !ok {
		return 0, ok, err
	}
	return decodeUserID(id, v)
}

// Range visits changesets in ascending id order and returns how many there
// were.
func (c *Changesets) Range(fn func(id, userID int64) error) (int64, error) {
	var n int64
	err := c.ix.Range(func(k int64, v []byte) error {
		uid, _, err := decodeUserID(k, v)
		if err != nil {
			return err
		}
		n++
		return fn(k, uid)
	})
	return n, err
}

func (c *Changesets) Close() error {
	return c.ix.Close()
}

func decodeUserID(id int64, v []byte) (int64, bool, error) {
	if len(v) != 8 {
		return 0, false, fmt.Errorf("changeset %d: corrupt user id of %d bytes", id, len(v))
	}
	return int64(binary.BigEndian.Uint64(v)), true, nil
}
