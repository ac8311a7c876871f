package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"sync"
)

// MaxLineBytes bounds a single wire line.
const MaxLineBytes = 1 << 20

// Framer reads and writes newline-delimited wire lines. Reading is
// single-consumer; writes are serialized by an internal mutex so
// concurrent completions cannot interleave bytes on the wire.
type Framer struct {
	scanner *bufio.Scanner

	wmu sync.Mutex
	w   io.Writer
}

// NewFramer wraps a reader and writer pair.
func NewFramer(r io.Reader, w io.Writer) *Framer {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), MaxLineBytes)
	return &Framer{scanner: sc, w: w}
}

// ReadLine returns the next non-blank line without its terminator. The
// returned slice is a copy and stays valid across calls. At end of input
// it returns io.EOF.
func (f *Framer) ReadLine() ([]byte, error) {
	for f.scanner.Scan() {
		line := bytes.TrimRight(f.scanner.Bytes(), "\r")
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		out := make([]byte, len(line))
		copy(out, line)
		return out, nil
	}
	if err := f.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, ErrLineTooLong
		}
		return nil, err
	}
	return nil, io.EOF
}

// WriteLine writes b followed by a newline as a single write.
func (f *Framer) WriteLine(b []byte) error {
	f.wmu.Lock()
	defer f.wmu.Unlock()
	buf := make([]byte, 0, len(b)+1)
	buf = append(buf, b...)
	buf = append(buf, '\n')
	_, err := f.w.Write(buf)
	return err
}
