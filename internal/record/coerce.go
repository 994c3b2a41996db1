package record

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wegman-software/osm-admin/internal/schema"
)

// Null is the COPY text representation of SQL NULL.
const Null = `\N`

const (
	// TimeLayout is the timestamp format of the dump. Parsing also accepts
	// fractional seconds.
	TimeLayout = "2006-01-02 15:04:05"
	// MicroTimeLayout is used where the schema keeps sub-second precision.
	MicroTimeLayout = "2006-01-02 15:04:05.000000"
)

var (
	ErrBadBool        = errors.New("invalid boolean literal")
	ErrBadEnum        = errors.New("invalid enum value")
	ErrUnexpectedNull = errors.New("unexpected null")
	ErrShortRow       = errors.New("row has too few columns")
)

// Escape applies COPY text escaping to s.
func Escape(s string) string {
	if !strings.ContainsAny(s, "\\\t\n\r") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\':
			b.WriteString(`\\`)
		case '\t':
			b.WriteString(`\t`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Unescape reverses COPY text escaping, including octal and hex sequences.
func Unescape(s string) string {
	if strings.IndexByte(s, '\\') < 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch c = s[i]; c {
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case 'v':
			b.WriteByte('\v')
		case '0', '1', '2', '3', '4', '5', '6', '7':
			v := int(c - '0')
			for n := 1; n < 3 && i+1 < len(s) && s[i+1] >= '0' && s[i+1] <= '7'; n++ {
				i++
				v = v*8 + int(s[i]-'0')
			}
			b.WriteByte(byte(v))
		case 'x':
			v, n := 0, 0
			for ; n < 2 && i+1 < len(s) && isHex(s[i+1]); n++ {
				i++
				v = v*16 + hexValue(s[i])
			}
			if n == 0 {
				b.WriteByte('x')
			} else {
				b.WriteByte(byte(v))
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func hexValue(c byte) int {
	switch {
	case c >= 'a':
		return int(c-'a') + 10
	case c >= 'A':
		return int(c-'A') + 10
	}
	return int(c - '0')
}

// ParseBool decodes the t/f boolean literals.
func ParseBool(s string) (bool, error) {
	switch s {
	case "t":
		return true, nil
	case "f":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q", ErrBadBool, s)
}

func FormatBool(b bool) string {
	if b {
		return "t"
	}
	return "f"
}

// ParseTime parses a dump timestamp as UTC.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeLayout, s)
}

// fields pulls typed values out of one split row. The first failure is
// kept in err and later calls become no-ops.
type fields struct {
	values []string
	err    error
}

func (f *fields) raw(i int) (string, bool) {
	if f.err != nil {
		return "", false
	}
	if i < 0 || i >= len(f.values) {
		f.err = fmt.Errorf("%w: %d, need column %d", ErrShortRow, len(f.values), i)
		return "", false
	}
	return f.values[i], true
}

func (f *fields) fail(i int, err error) {
	if f.err == nil {
		f.err = fmt.Errorf("column %d: %w", i, err)
	}
}

func (f *fields) required(i int) (string, bool) {
	s, ok := f.raw(i)
	if ok && s == Null {
		f.fail(i, ErrUnexpectedNull)
		return "", false
	}
	return s, ok
}

// nullable reports present=false for NULL and for columns the table lacks.
func (f *fields) nullable(i int) (string, bool) {
	if i == schema.Absent {
		return "", false
	}
	s, ok := f.raw(i)
	if !ok || s == Null {
		return "", false
	}
	return s, true
}

func (f *fields) int64(i int) int64 {
	s, ok := f.required(i)
	if !ok {
		return 0
	}
	return f.parseInt(i, s, 64)
}

func (f *fields) int32(i int) int32 {
	s, ok := f.required(i)
	if !ok {
		return 0
	}
	return int32(f.parseInt(i, s, 32))
}

func (f *fields) parseInt(i int, s string, bits int) int64 {
	v, err := strconv.ParseInt(s, 10, bits)
	if err != nil {
		f.fail(i, err)
	}
	return v
}

func (f *fields) bool(i int) bool {
	s, ok := f.required(i)
	if !ok {
		return false
	}
	v, err := ParseBool(s)
	if err != nil {
		f.fail(i, err)
	}
	return v
}

func (f *fields) time(i int) time.Time {
	s, ok := f.required(i)
	if !ok {
		return time.Time{}
	}
	v, err := ParseTime(s)
	if err != nil {
		f.fail(i, err)
	}
	return v
}

func (f *fields) text(i int) string {
	s, ok := f.required(i)
	if !ok {
		return ""
	}
	return Unescape(s)
}

func (f *fields) optText(i int) *string {
	s, ok := f.nullable(i)
	if !ok {
		return nil
	}
	v := Unescape(s)
	return &v
}

func (f *fields) optInt64(i int) *int64 {
	s, ok := f.nullable(i)
	if !ok {
		return nil
	}
	v := f.parseInt(i, s, 64)
	return &v
}

func (f *fields) optInt32(i int) *int32 {
	s, ok := f.nullable(i)
	if !ok {
		return nil
	}
	v := int32(f.parseInt(i, s, 32))
	return &v
}

func (f *fields) optInt16(i int) *int16 {
	s, ok := f.nullable(i)
	if !ok {
		return nil
	}
	v := int16(f.parseInt(i, s, 16))
	return &v
}

func (f *fields) optFloat64(i int) *float64 {
	s, ok := f.nullable(i)
	if !ok {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		f.fail(i, err)
	}
	return &v
}

func (f *fields) optTime(i int) *time.Time {
	s, ok := f.nullable(i)
	if !ok {
		return nil
	}
	v, err := ParseTime(s)
	if err != nil {
		f.fail(i, err)
	}
	return &v
}
