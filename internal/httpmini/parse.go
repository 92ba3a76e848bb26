package httpmini

import (
	"bytes"
	"errors"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
)

// maxBufferBytes is the Connection.buffer cap from the data model: any
// connection whose unparsed buffer grows past this is garbage or abusive
// and gets closed outright.
const maxBufferBytes = 10 * 1024 * 1024

// ErrBufferOverflow is returned when a connection's buffer exceeds
// maxBufferBytes before a complete request could be parsed.
var ErrBufferOverflow = errors.New("httpmini: buffer overflow")

// ErrTLSClientHello is returned when the first bytes on a connection look
// like a TLS ClientHello record header, i.e. a mis-dialed HTTPS client.
var ErrTLSClientHello = errors.New("httpmini: TLS ClientHello on plaintext listener")

// ErrMalformedRequest is returned when the request line or headers can't
// be parsed at all (as opposed to simply being incomplete).
var ErrMalformedRequest = errors.New("httpmini: malformed request")

// parsedRequest is one fully-framed HTTP request read off a connection.
type parsedRequest struct {
	Method  string
	Path    string
	Query   url.Values
	Version string
	Headers textproto.MIMEHeader
	Body    []byte
}

// looksLikeTLS reports whether buf starts with a TLS record header for a
// ClientHello: 0x16 (handshake), 0x03 (major version 3), any minor.
func looksLikeTLS(buf []byte) bool {
	return len(buf) >= 3 && buf[0] == 0x16 && buf[1] == 0x03
}

// tryParse attempts to parse one complete request from the head of buf.
// It returns the parsed request and how many bytes of buf it consumed. If
// buf doesn't yet hold a complete request, ok is false and err is nil -
// the caller should read more bytes and retry. err is non-nil only for a
// request that is malformed or oversized, never for "not enough data yet".
func tryParse(buf []byte) (req *parsedRequest, consumed int, ok bool, err error) {
	if len(buf) > maxBufferBytes {
		return nil, 0, false, ErrBufferOverflow
	}
	if looksLikeTLS(buf) {
		return nil, 0, false, ErrTLSClientHello
	}

	headerEnd, sepLen := findHeaderEnd(buf)
	if headerEnd < 0 {
		return nil, 0, false, nil
	}

	head := buf[:headerEnd]
	lines := splitLines(head)
	if len(lines) == 0 {
		return nil, 0, false, ErrMalformedRequest
	}

	method, path, query, version, err := parseRequestLine(lines[0])
	if err != nil {
		return nil, 0, false, err
	}

	headers, err := parseHeaders(lines[1:])
	if err != nil {
		return nil, 0, false, err
	}

	contentLength := 0
	if cl := headers.Get("Content-Length"); cl != "" {
		n, perr := strconv.Atoi(strings.TrimSpace(cl))
		if perr != nil || n < 0 {
			return nil, 0, false, ErrMalformedRequest
		}
		contentLength = n
	}

	total := headerEnd + sepLen + contentLength
	if len(buf) < total {
		if total > maxBufferBytes {
			return nil, 0, false, ErrBufferOverflow
		}
		return nil, 0, false, nil
	}

	body := make([]byte, contentLength)
	copy(body, buf[headerEnd+sepLen:total])

	return &parsedRequest{
		Method:  method,
		Path:    path,
		Query:   query,
		Version: version,
		Headers: headers,
		Body:    body,
	}, total, true, nil
}

// findHeaderEnd locates the end of the header block, preferring the
// canonical "\r\n\r\n" but tolerating bare "\n\n" from non-conformant
// clients. Returns -1 if neither is present yet.
func findHeaderEnd(buf []byte) (offset int, sepLen int) {
	if i := bytes.Index(buf, []byte("\r\n\r\n")); i >= 0 {
		return i, 4
	}
	if i := bytes.Index(buf, []byte("\n\n")); i >= 0 {
		return i, 2
	}
	return -1, 0
}

func splitLines(head []byte) []string {
	raw := strings.Split(string(head), "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		lines = append(lines, strings.TrimRight(l, "\r"))
	}
	return lines
}

func parseRequestLine(line string) (method, path string, query url.Values, version string, err error) {
	parts := strings.Fields(line)
	if len(parts) != 3 {
		return "", "", nil, "", ErrMalformedRequest
	}
	method = strings.ToUpper(parts[0])
	rawPath := parts[1]
	version = parts[2]

	p := rawPath
	q := url.Values{}
	if idx := strings.IndexByte(rawPath, '?'); idx >= 0 {
		p = rawPath[:idx]
		if parsed, perr := url.ParseQuery(rawPath[idx+1:]); perr == nil {
			q = parsed
		}
	}
	return method, p, q, version, nil
}

func parseHeaders(lines []string) (textproto.MIMEHeader, error) {
	h := textproto.MIMEHeader{}
	for _, line := range lines {
		if line == "" {
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			return nil, ErrMalformedRequest
		}
		key := textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(line[:idx]))
		val := strings.TrimSpace(line[idx+1:])
		h.Add(key, val)
	}
	return h, nil
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header, "" if absent or malformed.
func bearerToken(h textproto.MIMEHeader) string {
	auth := h.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(auth, prefix) {
		return strings.TrimSpace(auth[len(prefix):])
	}
	return ""
}
