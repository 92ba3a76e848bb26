package framer

import (
	"io"
	"log/slog"
)

// readChunkSize is the buffer size used per Read call when pumping a
// stream through a Framer.
const readChunkSize = 64 * 1024

// Pump reads from r until EOF or error, feeding every chunk through a
// Framer and calling onLine for each complete line. It returns the error
// that ended the read loop (io.EOF is not treated specially by the
// caller - callers that want to distinguish a clean close should check
// for io.EOF themselves).
func Pump(r io.Reader, onLine func(line string), logger *slog.Logger) error {
	f := New()
	buf := make([]byte, readChunkSize)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			lines, invalid := f.Feed(buf[:n])
			if invalid > 0 && logger != nil {
				logger.Warn("dropped non-UTF-8 line", "count", invalid)
			}
			for _, line := range lines {
				onLine(line)
			}
		}
		if err != nil {
			return err
		}
	}
}
