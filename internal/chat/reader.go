package chat

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"strings"
	"time"

	"github.com/vovakirdan/linechat/internal/proto"
)

// lineReader reads newline-terminated lines from a connection, skipping
// liveness probes. Every read is bounded by the idle timeout.
type lineReader struct {
	conn    net.Conn
	scanner *bufio.Scanner
	idle    time.Duration
}

func newLineReader(conn net.Conn, maxLineBytes int, idle time.Duration) *lineReader {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, min(maxLineBytes, 4096)), maxLineBytes)
	scanner.Split(scanFrames)
	return &lineReader{conn: conn, scanner: scanner, idle: idle}
}

// next returns the next line without its terminator. Malformed UTF-8 is
// replaced. It returns io.EOF at end of stream, a timeout error when the peer
// stays silent past the idle timeout, or bufio.ErrTooLong for oversized lines.
func (r *lineReader) next() (string, error) {
	for {
		if r.idle > 0 {
			_ = r.conn.SetReadDeadline(time.Now().Add(r.idle))
		}
		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}

		frame := r.scanner.Bytes()
		if bytes.IndexByte(frame, proto.Probe) < 0 {
			return strings.ToValidUTF8(string(frame), "�"), nil
		}

		stripped := bytes.ReplaceAll(frame, []byte{proto.Probe}, nil)
		if len(bytes.TrimSpace(stripped)) == 0 {
			continue
		}
		return strings.ToValidUTF8(string(stripped), "�"), nil
	}
}

// scanFrames splits on newlines and also yields a probe byte at the start of
// the buffer as its own frame, since clients send it without a terminator.
func scanFrames(data []byte, atEOF bool) (int, []byte, error) {
	if len(data) > 0 && data[0] == proto.Probe {
		return 1, data[:1], nil
	}
	return bufio.ScanLines(data, atEOF)
}
