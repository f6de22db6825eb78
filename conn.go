package pubfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	inputBufferBytes  = 1024
	outputBufferBytes = 1024
	copyBufferBytes   = 1024
)

var errNotFileBacked = errors.New("connection is not backed by a file descriptor")

// timeoutReader gates every read on bounded readiness of the underlying
// descriptor, giving plain file reads a deadline at whole-second granularity.
// A timeout surfaces as ErrReadTimeout, a polling failure as the select error.
type timeoutReader struct {
	f       *os.File
	fd      int
	seconds int
}

func (r *timeoutReader) Read(p []byte) (int, error) {
	outcome := WaitReadable(r.fd, r.seconds)
	switch {
	case outcome.TimedOut():
		return 0, ErrReadTimeout
	case outcome.Failed():
		return 0, outcome.Err()
	}
	return r.f.Read(p)
}

type countingWriter struct {
	f *os.File
	n uint64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	w.n += uint64(n)
	return n, err
}

// Conn is one client connection: buffered input with deadline-bounded reads,
// buffered output, and a logger tagged with the remote address.
type Conn struct {
	input   *bufio.Reader
	output  *bufio.Writer
	counter *countingWriter
	inFile  *os.File
	outFile *os.File
	conn    net.Conn
	remote  string
	buf     []byte
	log     zerolog.Logger
}

// NewConn wraps an accepted TCP connection. The descriptor is duplicated out
// of the runtime's control so the readiness waiter can select on it directly.
func NewConn(conn net.Conn, readTimeoutSeconds int) (*Conn, error) {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil, errNotFileBacked
	}
	file, err := tcpConn.File()
	if err != nil {
		return nil, err
	}
	c := newFileConn(file, file, conn.RemoteAddr().String(), readTimeoutSeconds)
	c.conn = conn
	return c, nil
}

// NewFileConn builds a connection from a distinct input and output file, as
// when running under an inetd-style supervisor with the socket on
// stdin/stdout.
func NewFileConn(in, out *os.File, remote string, readTimeoutSeconds int) *Conn {
	return newFileConn(in, out, remote, readTimeoutSeconds)
}

func newFileConn(in, out *os.File, remote string, readTimeoutSeconds int) *Conn {
	counter := &countingWriter{f: out}
	return &Conn{
		input: bufio.NewReaderSize(&timeoutReader{
			f:       in,
			fd:      int(in.Fd()),
			seconds: readTimeoutSeconds,
		}, inputBufferBytes),
		output:  bufio.NewWriterSize(counter, outputBufferBytes),
		counter: counter,
		inFile:  in,
		outFile: out,
		remote:  remote,
		buf:     make([]byte, copyBufferBytes),
		log:     log.With().Str("remote", remote).Logger(),
	}
}

// ReadLine reads one CRLF-terminated line of the sort used in HTTP requests.
// As suggested in section 19.3 of the HTTP/1.1 spec ("Tolerant Applications")
// a bare LF terminator is accepted as well. The delimiter is stripped. Input
// ending before the delimiter reports ErrConnectionClosed.
func (c *Conn) ReadLine() ([]byte, error) {
	line, err := c.input.ReadBytes('\n')
	if err != nil {
		// EOF with or without partial data reads the same: the client is
		// gone. Timeouts and poll failures pass through untouched.
		if errors.Is(err, io.EOF) {
			return nil, ErrConnectionClosed
		}
		return nil, err
	}
	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line, nil
}

// Write failures are the client's fault and can't typically be reported, so
// they are uniformly indicated as ErrConnectionClosed.
func (c *Conn) Write(data []byte) error {
	if _, err := c.output.Write(data); err != nil {
		return ErrConnectionClosed
	}
	return nil
}

func (c *Conn) WriteString(s string) error {
	if _, err := c.output.WriteString(s); err != nil {
		return ErrConnectionClosed
	}
	return nil
}

func (c *Conn) WriteDecimal(value uint64) error {
	if _, err := fmt.Fprintf(c.output, "%d", value); err != nil {
		return ErrConnectionClosed
	}
	return nil
}

func (c *Conn) WriteHex(value int) error {
	if _, err := fmt.Fprintf(c.output, "%x", value); err != nil {
		return ErrConnectionClosed
	}
	return nil
}

func (c *Conn) Flush() error {
	if err := c.output.Flush(); err != nil {
		return ErrConnectionClosed
	}
	return nil
}

// BytesSent returns the number of bytes flushed to the client so far.
func (c *Conn) BytesSent() uint64 { return c.counter.n }

func (c *Conn) Logger() *zerolog.Logger { return &c.log }

func (c *Conn) Close() error {
	err := c.inFile.Close()
	if c.outFile != c.inFile {
		if cerr := c.outFile.Close(); err == nil {
			err = cerr
		}
	}
	if c.conn != nil {
		if cerr := c.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
