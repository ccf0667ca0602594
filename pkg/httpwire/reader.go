package httpwire

import (
	"errors"
	"io"
	"strings"
)

// ChunkSize is the size of a single read. A read that returns fewer bytes
// ends the request.
const ChunkSize = 8192

// Request is what the query server needs from an HTTP request: the first
// line and the path token from it.
type Request struct {
	Line      string
	Method    string
	Path      string
	Truncated bool
}

type Reader struct {
	rd      io.Reader
	maxSize int
}

// NewReader reads at most maxSize bytes of a request. maxSize <= 0 means
// a single chunk.
func NewReader(rd io.Reader, maxSize int) *Reader {
	if maxSize <= 0 {
		maxSize = ChunkSize
	}
	return &Reader{rd: rd, maxSize: maxSize}
}

// Read accumulates chunks until a short or empty read, EOF, or the size
// limit, then parses the first line. Whatever was read is parsed even when
// an error is returned.
func (r *Reader) Read() (Request, error) {
	var (
		data []byte
		buf  = make([]byte, ChunkSize)
	)

	for {
		want := ChunkSize
		if room := r.maxSize - len(data); room < want {
			want = room
		}

		n, err := r.rd.Read(buf[:want])
		data = append(data, buf[:n]...)

		if err != nil {
			req := ParseRequest(string(data))
			if errors.Is(err, io.EOF) {
				return req, nil
			}
			return req, err
		}
		if len(data) >= r.maxSize {
			req := ParseRequest(string(data))
			req.Truncated = true
			return req, nil
		}
		if n < want {
			return ParseRequest(string(data)), nil
		}
	}
}

// ParseRequest takes the first line of text, splits it on spaces and uses
// the second token as the path. A missing token gives an empty path.
func ParseRequest(text string) Request {
	line, _, _ := strings.Cut(text, "\n")
	line = strings.TrimSuffix(line, "\r")

	req := Request{Line: line}
	parts := strings.Split(line, " ")
	req.Method = parts[0]
	if len(parts) > 1 {
		req.Path = parts[1]
	}
	return req
}
