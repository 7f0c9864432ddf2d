package redisserver

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/zephyrite/zephyrite/internal/core/domain"
)

// Protocol limits.
const (
	// MaxArrayLen limits the number of elements in a command array.
	MaxArrayLen = 1024

	// MaxBulkLen limits a single bulk string. It sits above the value size
	// limit so oversized SET values get a domain error instead of a dropped
	// connection.
	MaxBulkLen = 4 * domain.MaxValueSize

	// MaxInlineLen limits an inline command line.
	MaxInlineLen = 64 * 1024
)

var (
	ErrProtocol      = errors.New("resp: protocol error")
	ErrLimitExceeded = errors.New("resp: limit exceeded")
)

// ReadCommand reads one command as a list of arguments. Both the array
// form and the inline form ("PING\r\n") are accepted. An empty command
// yields nil arguments and no error.
func ReadCommand(r *bufio.Reader) ([][]byte, error) {
	b, err := r.Peek(1)
	if err != nil {
		return nil, err
	}
	if b[0] == '*' {
		return readArray(r)
	}

	line, err := readLine(r, MaxInlineLen)
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, nil
	}
	args := make([][]byte, len(fields))
	for i, f := range fields {
		args[i] = []byte(f)
	}
	return args, nil
}

func readArray(r *bufio.Reader) ([][]byte, error) {
	n, err := readLength(r, '*')
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	if n > MaxArrayLen {
		return nil, fmt.Errorf("%w: array length %d exceeds %d", ErrLimitExceeded, n, MaxArrayLen)
	}

	args := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		arg, err := readBulk(r)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	return args, nil
}

func readBulk(r *bufio.Reader) ([]byte, error) {
	n, err := readLength(r, '$')
	if err != nil {
		return nil, err
	}
	switch {
	case n == -1:
		return nil, nil
	case n < 0:
		return nil, fmt.Errorf("%w: invalid bulk length", ErrProtocol)
	case n > MaxBulkLen:
		return nil, fmt.Errorf("%w: bulk length %d exceeds %d", ErrLimitExceeded, n, MaxBulkLen)
	}

	buf := make([]byte, n+2)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	if buf[n] != '\r' || buf[n+1] != '\n' {
		return nil, fmt.Errorf("%w: invalid bulk terminator", ErrProtocol)
	}
	return buf[:n], nil
}

func readLength(r *bufio.Reader, prefix byte) (int, error) {
	line, err := readLine(r, 32)
	if err != nil {
		return 0, err
	}
	if len(line) < 2 || line[0] != prefix {
		return 0, fmt.Errorf("%w: expected '%c'", ErrProtocol, prefix)
	}
	n, err := strconv.Atoi(line[1:])
	if err != nil {
		return 0, fmt.Errorf("%w: invalid length %q", ErrProtocol, line[1:])
	}
	return n, nil
}

func readLine(r *bufio.Reader, maxLen int) (string, error) {
	var buf []byte
	for {
		frag, err := r.ReadSlice('\n')
		buf = append(buf, frag...)
		if len(buf) > maxLen+2 {
			return "", fmt.Errorf("%w: line exceeds %d bytes", ErrLimitExceeded, maxLen)
		}
		if err == nil {
			break
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return "", err
		}
	}
	if !bytes.HasSuffix(buf, []byte("\r\n")) {
		return "", fmt.Errorf("%w: missing CRLF", ErrProtocol)
	}
	return string(buf[:len(buf)-2]), nil
}

// Writer encodes RESP2 replies. The first write error sticks and later
// writes become no-ops.
type Writer struct {
	w   *bufio.Writer
	err error
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

func (w *Writer) raw(parts ...string) {
	for _, p := range parts {
		if w.err != nil {
			return
		}
		_, w.err = w.w.WriteString(p)
	}
}

// SimpleString writes "+s".
func (w *Writer) SimpleString(s string) {
	w.raw("+", s, "\r\n")
}

// Error writes "-s". Line breaks in s are replaced with spaces.
func (w *Writer) Error(s string) {
	s = strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
	w.raw("-", s, "\r\n")
}

// Integer writes ":n".
func (w *Writer) Integer(n int64) {
	w.raw(":", strconv.FormatInt(n, 10), "\r\n")
}

// Bulk writes b as a bulk string, or a null bulk when b is nil.
func (w *Writer) Bulk(b []byte) {
	if b == nil {
		w.Null()
		return
	}
	w.raw("$", strconv.Itoa(len(b)), "\r\n")
	if w.err == nil {
		_, w.err = w.w.Write(b)
	}
	w.raw("\r\n")
}

// BulkString writes s as a bulk string.
func (w *Writer) BulkString(s string) {
	w.raw("$", strconv.Itoa(len(s)), "\r\n", s, "\r\n")
}

// Null writes a null bulk string.
func (w *Writer) Null() {
	w.raw("$-1\r\n")
}

// ArrayHeader writes the header of an n element array.
func (w *Writer) ArrayHeader(n int) {
	w.raw("*", strconv.Itoa(n), "\r\n")
}

// StringArray writes ss as an array of bulk strings.
func (w *Writer) StringArray(ss []string) {
	w.ArrayHeader(len(ss))
	for _, s := range ss {
		w.BulkString(s)
	}
}

// Flush flushes buffered replies and returns the first error seen.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	w.err = w.w.Flush()
	return w.err
}

// Err returns the first error seen.
func (w *Writer) Err() error {
	return w.err
}

func commandName(b []byte) string {
	return strings.ToUpper(string(b))
}
