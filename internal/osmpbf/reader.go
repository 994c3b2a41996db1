package osmpbf

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/paulmach/osm"
	scan "github.com/paulmach/osm/osmpbf"
	"gopkg.in/cheggaaa/pb.v1"
)

// Reader streams the elements of a PBF file. Dense and plain nodes both
// arrive as *osm.Node.
type Reader struct {
	f       *os.File
	scanner *scan.Scanner
	bar     *pb.ProgressBar
}

// Open starts decoding path with procs parallel block decoders. With
// progress set a byte progress bar is drawn on stderr.
func Open(ctx context.Context, path string, procs int, progress bool) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PBF file: %w", err)
	}

	r := &Reader{f: f}
	var in io.Reader = f
	if progress {
		fi, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to stat PBF file: %w", err)
		}
		r.bar = pb.New64(fi.Size()).SetUnits(pb.U_BYTES).Prefix(filepath.Base(path) + " ")
		r.bar.Output = os.Stderr
		r.bar.Start()
		in = r.bar.NewProxyReader(f)
	}

	r.scanner = scan.New(ctx, in, procs)
	return r, nil
}

func (r *Reader) Next() bool {
	return r.scanner.Scan()
}

func (r *Reader) Value() osm.Object {
	return r.scanner.Object()
}

func (r *Reader) Err() error {
	if err := r.scanner.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("error scanning PBF: %w", err)
	}
	return nil
}

// ScannedBytes returns how far into the file decoding has got.
func (r *Reader) ScannedBytes() int64 {
	return r.scanner.FullyScannedBytes()
}

// Size returns the size of the input file.
func (r *Reader) Size() int64 {
	fi, err := r.f.Stat()
	if err != nil {
		return 0
	}
	return fi.Size()
}

// Header returns the file's header block. It may be called before or
// during the element scan.
func (r *Reader) Header() (Header, error) {
	sh, err := r.scanner.Header()
	if err != nil {
		return Header{}, fmt.Errorf("failed to read PBF header: %w", err)
	}
	if sh == nil {
		return Header{}, errNoHeader
	}
	return headerFrom(sh), nil
}

func (r *Reader) Close() error {
	err := r.scanner.Close()
	if r.bar != nil {
		r.bar.Finish()
	}
	if cerr := r.f.Close(); err == nil {
		err = cerr
	}
	return err
}
