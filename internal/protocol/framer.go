package protocol

import (
	"errors"
	"fmt"
	"io"
)

// IncompleteReadError is returned when the stream ends before the
// requested number of bytes has been accumulated.
type IncompleteReadError struct {
	Expected int
	Received int
}

func (e *IncompleteReadError) Error() string {
	return fmt.Sprintf("incomplete read: got %d of %d bytes", e.Received, e.Expected)
}

// Unwrap lets callers match the error against io.ErrUnexpectedEOF.
func (e *IncompleteReadError) Unwrap() error {
	return io.ErrUnexpectedEOF
}

// ReadExact reads exactly n bytes from r. It never returns a short slice:
// if the stream ends first, the error is an *IncompleteReadError carrying
// the number of bytes that did arrive.
func ReadExact(r io.Reader, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("invalid read size %d", n)
	}

	buf := make([]byte, n)
	got, err := io.ReadFull(r, buf)
	if err == nil {
		return buf, nil
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, &IncompleteReadError{Expected: n, Received: got}
	}

	return nil, fmt.Errorf("failed to read %d bytes (got %d): %w", n, got, err)
}
