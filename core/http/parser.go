package http

import (
	"bytes"
	"errors"
	"strings"
)

var (
	// ErrInvalidRequest means the bytes cannot be parsed as an HTTP request.
	ErrInvalidRequest = errors.New("invalid HTTP request")
	// ErrIncompleteRequest means the header terminator has not arrived yet.
	ErrIncompleteRequest = errors.New("incomplete HTTP request")
)

var crlfcrlf = []byte("\r\n\r\n")

// HeaderEnd returns the offset just past the header terminator, or -1 when
// the headers are not complete yet. Callers keep reading until it is found.
func HeaderEnd(data []byte) int {
	if idx := bytes.Index(data, crlfcrlf); idx != -1 {
		return idx + 4
	}
	if idx := bytes.Index(data, []byte("\n\n")); idx != -1 {
		return idx + 2
	}
	return -1
}

// ParseRequest parses the request line and headers into req. The data must
// contain the full header section; the query string is captured raw and
// split later, only for handlers that want it.
func ParseRequest(data []byte, req *Request) error {
	if HeaderEnd(data) == -1 {
		return ErrIncompleteRequest
	}

	lineEnd := bytes.IndexByte(data, '\n')
	if lineEnd == -1 {
		return ErrInvalidRequest
	}
	line := trimCR(data[:lineEnd])

	sp1 := bytes.IndexByte(line, ' ')
	if sp1 == -1 {
		return ErrInvalidRequest
	}
	sp2 := bytes.IndexByte(line[sp1+1:], ' ')
	if sp2 == -1 {
		return ErrInvalidRequest
	}
	sp2 += sp1 + 1

	req.Method = string(line[:sp1])
	req.Path = string(line[sp1+1 : sp2])
	req.Proto = string(line[sp2+1:])

	if len(req.Path) == 0 || req.Path[0] != '/' {
		return ErrInvalidRequest
	}

	if q := bytes.IndexByte(line[sp1+1:sp2], '?'); q != -1 {
		req.queryString = req.Path[q+1:]
		req.Path = req.Path[:q]
	}

	parseHeaders(req, data[lineEnd+1:])
	return nil
}

func parseHeaders(req *Request, data []byte) {
	for len(data) > 0 {
		lineEnd := bytes.IndexByte(data, '\n')
		if lineEnd == -1 {
			lineEnd = len(data)
		}

		line := trimCR(data[:lineEnd])
		if len(line) == 0 {
			return
		}

		colon := bytes.IndexByte(line, ':')
		if colon > 0 {
			key := string(bytes.TrimSpace(line[:colon]))
			value := string(bytes.TrimSpace(line[colon+1:]))
			req.setHeader(key, value)
		}

		if lineEnd == len(data) {
			return
		}
		data = data[lineEnd+1:]
	}
}

func trimCR(line []byte) []byte {
	if n := len(line); n > 0 && line[n-1] == '\r' {
		return line[:n-1]
	}
	return line
}

// ParseQueryParams splits the request's raw query string into ordered
// key/value pairs appended to dst. Appending to the shared NoParams
// sentinel allocates fresh storage, so the sentinel itself is never
// mutated.
func ParseQueryParams(dst []Param, req *Request) []Param {
	qs := req.queryString
	for len(qs) > 0 {
		pair := qs
		if amp := strings.IndexByte(qs, '&'); amp != -1 {
			pair = qs[:amp]
			qs = qs[amp+1:]
		} else {
			qs = ""
		}
		if pair == "" {
			continue
		}
		if eq := strings.IndexByte(pair, '='); eq != -1 {
			dst = append(dst, Param{Key: urlDecode(pair[:eq]), Value: urlDecode(pair[eq+1:])})
		} else {
			dst = append(dst, Param{Key: urlDecode(pair)})
		}
	}
	return dst
}

func urlDecode(s string) string {
	if strings.IndexByte(s, '%') == -1 && strings.IndexByte(s, '+') == -1 {
		return s
	}
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '+':
			out = append(out, ' ')
		case c == '%' && i+2 < len(s):
			hi, okHi := unhex(s[i+1])
			lo, okLo := unhex(s[i+2])
			if okHi && okLo {
				out = append(out, hi<<4|lo)
				i += 2
			} else {
				out = append(out, c)
			}
		default:
			out = append(out, c)
		}
	}
	return string(out)
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
