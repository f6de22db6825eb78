package pubfile

import "bytes"

type Method int8

const (
	MethodGet Method = iota
	MethodHead
)

type Protocol int8

const (
	HTTP10 Protocol = iota
	HTTP11
)

func (p Protocol) String() string {
	if p == HTTP11 {
		return "HTTP/1.1"
	}
	return "HTTP/1.0"
}

// Request is a parsed request line plus the few headers this server cares
// about. Host is nil when the client supplied none anywhere.
type Request struct {
	Method          Method
	Protocol        Protocol
	Host            []byte
	Path            []byte
	IfModifiedSince []byte
	AcceptGzip      bool
}

// ReadRequest accepts one request from the connection. Blank lines before the
// request line are tolerated and skipped, mimicking publicfile.
func ReadRequest(c *Conn) (*Request, error) {
	var requestLine []byte
	for {
		line, err := c.ReadLine()
		if err != nil {
			return nil, err
		}
		if len(line) > 0 {
			requestLine = line
			break
		}
	}

	req, err := parseRequestLine(requestLine)
	if err != nil {
		return nil, err
	}

	// Headers can be broken over multiple lines using indentation, so each
	// one is accumulated until a line that doesn't continue it arrives.
	var hdr []byte
	for {
		hdrLine, err := c.ReadLine()
		if err != nil {
			return nil, err
		}

		if len(hdr) > 0 && (len(hdrLine) == 0 || !isHTTPWS(hdrLine[0])) {
			if err := applyHeader(req, hdr); err != nil {
				return nil, err
			}
			hdr = hdr[:0]
		}

		if len(hdrLine) == 0 {
			break
		}
		hdr = append(hdr, hdrLine...)
	}

	return req, nil
}

func applyHeader(req *Request, hdr []byte) error {
	switch {
	case hasPrefixFold(hdr, "content-length:"), hasPrefixFold(hdr, "transfer-encoding:"):
		return errNotImplemented("I can't receive messages")

	case hasPrefixFold(hdr, "expect"):
		return ErrExpectationFailed

	case hasPrefixFold(hdr, "if-match"), hasPrefixFold(hdr, "if-unmodified-since"):
		// Treat the described precondition as having failed.
		return ErrPreconditionFailed

	case hasPrefixFold(hdr, "host:"):
		// Only accept a host from the headers if none was provided in the
		// request line. Dropping interior whitespace rather than trimming it
		// is a questionable reading of the spec that mimics publicfile.
		if req.Host == nil {
			host := make([]byte, 0, len(hdr)-5)
			for _, b := range hdr[5:] {
				if !isHTTPWS(b) {
					host = append(host, b)
				}
			}
			if len(host) > 0 {
				req.Host = host
			}
		}

	case hasPrefixFold(hdr, "if-modified-since:"):
		value := hdr[18:]
		for len(value) > 0 && isHTTPWS(value[0]) {
			value = value[1:]
		}
		req.IfModifiedSince = append([]byte(nil), value...)

	case hasPrefixFold(hdr, "accept-encoding:"):
		// A case-insensitive substring scan for "gzip". Out of spec ("gzip;q=0"
		// would match) but identical to publicfile's behavior.
		value := hdr[16:]
		for i := 0; i+4 <= len(value); i++ {
			if hasPrefixFold(value[i:], "gzip") {
				req.AcceptGzip = true
				break
			}
		}
	}
	return nil
}

func parseRequestLine(line []byte) (*Request, error) {
	parts := bytes.SplitN(line, []byte(" "), 3)
	if len(parts) != 3 {
		return nil, ErrBadRequest
	}

	var method Method
	switch {
	case bytes.Equal(parts[0], []byte("GET")):
		method = MethodGet
	case bytes.Equal(parts[0], []byte("HEAD")):
		method = MethodHead
	default:
		return nil, ErrBadMethod
	}

	// Distinguish an old-style path-only target from an HTTP/1.1-style
	// absolute URL by checking for an HTTP scheme.
	var host, path []byte
	if raw := parts[1]; hasPrefixFold(raw, "http://") {
		rest := raw[7:]
		slash := bytes.IndexByte(rest, '/')
		if slash < 0 {
			slash = len(rest)
		}
		// A URL of the form http:///foo legitimately specifies an "empty
		// host"; treat it as an absent host specification.
		if slash > 0 {
			host = append([]byte(nil), rest[:slash]...)
		}
		path = append([]byte(nil), rest[slash:]...)
	} else {
		path = append([]byte(nil), raw...)
	}

	var protocol Protocol
	switch {
	case bytes.Equal(parts[2], []byte("HTTP/1.0")):
		protocol = HTTP10
	case bytes.Equal(parts[2], []byte("HTTP/1.1")):
		protocol = HTTP11
	default:
		return nil, ErrBadProtocol
	}

	// Slap an index.html onto any path that, from simple textual inspection,
	// names a directory.
	if len(path) == 0 || path[len(path)-1] == '/' {
		path = append(path, []byte("index.html")...)
	}

	return &Request{
		Method:   method,
		Protocol: protocol,
		Host:     host,
		Path:     path,
	}, nil
}

func isHTTPWS(c byte) bool {
	return c == ' ' || c == '\t'
}

// hasPrefixFold checks for an ASCII-case-insensitive prefix. HTTP never
// specified a header encoding, so this treats bytes outside ASCII as opaque.
func hasPrefixFold(v []byte, prefix string) bool {
	if len(v) < len(prefix) {
		return false
	}
	return bytes.EqualFold(v[:len(prefix)], []byte(prefix))
}
