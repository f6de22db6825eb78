package pubfile

import (
	"bytes"
	"errors"
	"io"
	"time"
)

// httpTimeFormat is RFC 1123 with the timezone pinned to GMT, as HTTP wants.
const httpTimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

const serverName = "pubfile"

type ContentEncoding int8

const (
	EncodingIdentity ContentEncoding = iota
	EncodingGzip
)

// Send writes a complete response for resource. HTTP/1.0 clients get an
// unencoded body and the connection is closed afterwards; HTTP/1.1 clients
// get a chunked body and the connection stays open. A matching
// If-Modified-Since turns the whole thing into a 304.
func Send(c *Conn, req *Request, now time.Time, encoding ContentEncoding,
	contentType string, resource *OpenFile) error {

	mtime := resource.Mtime.UTC().Format(httpTimeFormat)
	unmodified := req.IfModifiedSince != nil &&
		bytes.Equal(req.IfModifiedSince, []byte(mtime))

	var err error
	if unmodified {
		c.Logger().Debug().Msg("not modified")
		err = startResponse(c, req.Protocol, now, "304", "not modified")
	} else {
		err = startResponse(c, req.Protocol, now, "200", "OK")
	}
	if err != nil {
		return err
	}

	if err := c.WriteString("Content-Type: " + contentType + "\r\n"); err != nil {
		return err
	}
	if err := c.WriteString("Last-Modified: " + mtime + "\r\n"); err != nil {
		return err
	}
	if encoding == EncodingGzip {
		if err := c.WriteString("Content-Encoding: gzip\r\n"); err != nil {
			return err
		}
	}

	sendContent := req.Method == MethodGet && !unmodified

	var r error
	switch req.Protocol {
	case HTTP10:
		r = sendUnencoded(c, sendContent, resource)
	default:
		r = sendChunked(c, sendContent, resource)
	}

	if err := c.Flush(); err != nil {
		return err
	}
	return r
}

// Barf signals the given error to the client, best-effort, and reports
// whether the failure is one that can even be answered. The HTML wrapper is
// tiny on purpose; error pages are not a feature here.
func Barf(c *Conn, protocol Protocol, haveProtocol, sendContent bool, cause error) error {
	var code, message string
	var notImpl *notImplementedError
	switch {
	case errors.Is(cause, ErrConnectionClosed):
		return nil
	case errors.Is(cause, ErrBadMethod):
		code, message = "501", "method not implemented"
	case errors.Is(cause, ErrBadRequest):
		code, message = "400", "bad request"
	case errors.Is(cause, ErrBadProtocol):
		code, message = "505", "HTTP version not supported"
	case errors.Is(cause, ErrExpectationFailed):
		code, message = "417", "expectations not supported"
	case errors.Is(cause, ErrPreconditionFailed):
		code, message = "412", "bad precondition"
	case errors.Is(cause, ErrNotFound):
		code, message = "404", "not found"
	case errors.As(cause, &notImpl):
		code, message = "501", notImpl.msg
	default:
		code, message = "500", "error"
	}

	body := "<html><body>" + message + "</body></html>\r\n"

	proto := HTTP10
	if haveProtocol {
		proto = protocol
	}
	if err := startResponse(c, proto, time.Now(), code, message); err != nil {
		return err
	}
	if err := c.WriteString("Content-Length: "); err != nil {
		return err
	}
	if err := c.WriteDecimal(uint64(len(body))); err != nil {
		return err
	}
	if err := c.WriteString("\r\n"); err != nil {
		return err
	}
	if haveProtocol && protocol == HTTP11 {
		if err := c.WriteString("Connection: close\r\n"); err != nil {
			return err
		}
	}
	if err := c.WriteString("Content-Type: text/html\r\n\r\n"); err != nil {
		return err
	}
	if sendContent {
		if err := c.WriteString(body); err != nil {
			return err
		}
	}
	return c.Flush()
}

func sendUnencoded(c *Conn, sendContent bool, resource *OpenFile) error {
	if err := c.WriteString("Content-Length: "); err != nil {
		return err
	}
	if err := c.WriteDecimal(resource.Length); err != nil {
		return err
	}
	if err := c.WriteString("\r\n\r\n"); err != nil {
		return err
	}

	if sendContent {
		for {
			count, err := resource.File.Read(c.buf)
			if count > 0 {
				if werr := c.Write(c.buf[:count]); werr != nil {
					return werr
				}
			}
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
		}
	}

	// Unencoded responses go to HTTP/1.0 clients, which are assumed not to
	// use persistent connections.
	return ErrConnectionClosed
}

func sendChunked(c *Conn, sendContent bool, resource *OpenFile) error {
	if err := c.WriteString("Transfer-Encoding: chunked\r\n\r\n"); err != nil {
		return err
	}

	if sendContent {
		for {
			count, err := resource.File.Read(c.buf)
			if err != nil && err != io.EOF {
				return err
			}
			if werr := c.WriteHex(count); werr != nil {
				return werr
			}
			if werr := c.WriteString("\r\n"); werr != nil {
				return werr
			}
			if werr := c.Write(c.buf[:count]); werr != nil {
				return werr
			}
			if werr := c.WriteString("\r\n"); werr != nil {
				return werr
			}
			if count == 0 {
				// End of transfer.
				break
			}
		}
	}

	// Leave the connection open for more requests.
	return nil
}

// startResponse prints the status line and the headers common to every
// response. The caller follows up with its own headers and a blank line.
func startResponse(c *Conn, protocol Protocol, now time.Time, code, msg string) error {
	if err := c.WriteString(protocol.String() + " " + code + " " + msg + "\r\n"); err != nil {
		return err
	}
	return c.WriteString("Server: " + serverName + "\r\n" +
		"Date: " + now.UTC().Format(httpTimeFormat) + "\r\n")
}
