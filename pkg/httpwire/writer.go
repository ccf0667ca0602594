package httpwire

import (
	"fmt"
	"io"
)

const (
	StatusOK    = "200 OK"
	ContentType = "text/json"
)

type Writer struct {
	wr io.Writer
}

func NewWriter(wr io.Writer) *Writer {
	return &Writer{wr: wr}
}

// Write sends a complete 200 response with body. The connection is always
// announced as closing.
func (w *Writer) Write(body []byte) error {
	header := fmt.Sprintf("HTTP/1.1 %s\r\n"+
		"Content-Type: %s\r\n"+
		"Content-Length: %d\r\n"+
		"Connection: close\r\n\r\n", StatusOK, ContentType, len(body))

	msg := make([]byte, 0, len(header)+len(body))
	msg = append(msg, header...)
	msg = append(msg, body...)

	_, err := w.wr.Write(msg)
	return err
}
