package collector

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

const maxLineSize = 1 << 20

// ErrLineTooLong is returned by Next for a line longer than maxLineSize. The
// line is consumed, so the following call continues with the next line.
var ErrLineTooLong = errors.New("log line exceeds maximum size")

// FileSource reads newline-delimited JSON events from a file or stdin.
type FileSource struct {
	reader *bufio.Reader
	closer io.Closer
}

func NewReaderSource(r io.Reader) *FileSource {
	s := &FileSource{reader: bufio.NewReaderSize(r, 64*1024)}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// OpenFile opens path for reading. "-" reads stdin.
func OpenFile(path string) (*FileSource, error) {
	if path == "-" || path == "" {
		return NewReaderSource(os.Stdin), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	return NewReaderSource(f), nil
}

func (s *FileSource) Next(ctx context.Context) ([]byte, error) {
	var line []byte
	tooLong := false

	for {
		chunk, err := s.reader.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > maxLineSize {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}

		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		if tooLong {
			return nil, ErrLineTooLong
		}
		if err != nil && len(line) == 0 {
			return nil, io.EOF
		}
		return line, nil
	}
}

func (s *FileSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
