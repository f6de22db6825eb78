package pubfile

import (
	"bytes"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, readTimeoutSec int) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.Chmod(dir, 0o755))

	config := &Config{
		Server: ServerConfig{
			Net:            "tcp",
			Address:        "127.0.0.1:0",
			RootDir:        dir,
			ReadTimeoutSec: readTimeoutSec,
		},
	}
	server, err := NewServer(config)
	require.NoError(t, err)
	require.NoError(t, server.Listen())
	t.Cleanup(func() { server.Stop() })
	return server, dir
}

func publish(t *testing.T, root, host, name, content string) {
	t.Helper()
	dir := filepath.Join(root, host)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chmod(path, 0o644))
}

func exchange10(t *testing.T, addr, request string) string {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(request))
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	// HTTP/1.0 exchanges end with the server closing the connection.
	data, err := io.ReadAll(conn)
	require.NoError(t, err)
	return string(data)
}

func readUntil(t *testing.T, conn net.Conn, marker string) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var out bytes.Buffer
	buf := make([]byte, 512)
	for !strings.Contains(out.String(), marker) {
		n, err := conn.Read(buf)
		out.Write(buf[:n])
		if err != nil {
			break
		}
	}
	require.Contains(t, out.String(), marker)
	return out.String()
}

func TestServerServesDefaultHost(t *testing.T) {
	server, root := startServer(t, 5)
	publish(t, root, "0", "index.html", "<html>hi</html>")

	out := exchange10(t, server.Addr(), "GET / HTTP/1.0\r\n\r\n")
	require.True(t, strings.HasPrefix(out, "HTTP/1.0 200 OK\r\n"), "got: %q", out)
	require.Contains(t, out, "Content-Type: text/html\r\n")
	require.Contains(t, out, "<html>hi</html>")
}

func TestServerVirtualHostAndPersistentConnection(t *testing.T) {
	server, root := startServer(t, 5)
	publish(t, root, "example.com", "page.html", "first")
	publish(t, root, "example.com", "other.html", "second")

	conn, err := net.Dial("tcp", server.Addr())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET /page.html HTTP/1.1\r\nHost: EXAMPLE.com:80\r\n\r\n"))
	require.NoError(t, err)
	out := readUntil(t, conn, "0\r\n\r\n")
	require.True(t, strings.HasPrefix(out, "HTTP/1.1 200 OK\r\n"), "got: %q", out)
	require.Contains(t, out, "Transfer-Encoding: chunked\r\n")
	require.Contains(t, out, "first")

	// The connection stays open for the next request.
	_, err = conn.Write([]byte("GET /other.html HTTP/1.1\r\nHost: example.com\r\n\r\n"))
	require.NoError(t, err)
	out = readUntil(t, conn, "0\r\n\r\n")
	require.Contains(t, out, "second")
}

func TestServerNotFound(t *testing.T) {
	server, _ := startServer(t, 5)

	out := exchange10(t, server.Addr(), "GET /missing.html HTTP/1.0\r\n\r\n")
	require.True(t, strings.HasPrefix(out, "HTTP/1.0 404 not found\r\n"), "got: %q", out)
}

func TestServerHidesDotfiles(t *testing.T) {
	server, root := startServer(t, 5)
	publish(t, root, "0", ".secret", "hidden")

	out := exchange10(t, server.Addr(), "GET /.secret HTTP/1.0\r\n\r\n")
	require.True(t, strings.HasPrefix(out, "HTTP/1.0 404 not found\r\n"), "got: %q", out)
	require.NotContains(t, out, "hidden")
}

func TestServerHTTP11RequiresHost(t *testing.T) {
	server, _ := startServer(t, 5)

	conn, err := net.Dial("tcp", server.Addr())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET / HTTP/1.1\r\n\r\n"))
	require.NoError(t, err)
	out := readUntil(t, conn, "\r\n\r\n")
	require.True(t, strings.HasPrefix(out, "HTTP/1.1 400 bad request\r\n"), "got: %q", out)
}

func TestServerGzipAlternate(t *testing.T) {
	server, root := startServer(t, 5)
	publish(t, root, "0", "page.html", "plain body")
	publish(t, root, "0", "page.html.gz", "gzipped body")

	// The alternate must be at least as recent as the primary.
	now := time.Now()
	require.NoError(t, os.Chtimes(filepath.Join(root, "0", "page.html"), now, now.Add(-time.Hour)))
	require.NoError(t, os.Chtimes(filepath.Join(root, "0", "page.html.gz"), now, now))

	out := exchange10(t, server.Addr(),
		"GET /page.html HTTP/1.0\r\nAccept-Encoding: gzip\r\n\r\n")
	require.Contains(t, out, "Content-Encoding: gzip\r\n")
	require.Contains(t, out, "gzipped body")
	// Content type comes from the primary name, not the .gz suffix.
	require.Contains(t, out, "Content-Type: text/html\r\n")
}

func TestServerStaleGzipAlternateIgnored(t *testing.T) {
	server, root := startServer(t, 5)
	publish(t, root, "0", "page.html", "plain body")
	publish(t, root, "0", "page.html.gz", "stale gzip")

	now := time.Now()
	require.NoError(t, os.Chtimes(filepath.Join(root, "0", "page.html"), now, now))
	require.NoError(t, os.Chtimes(filepath.Join(root, "0", "page.html.gz"), now, now.Add(-time.Hour)))

	out := exchange10(t, server.Addr(),
		"GET /page.html HTTP/1.0\r\nAccept-Encoding: gzip\r\n\r\n")
	require.NotContains(t, out, "Content-Encoding: gzip")
	require.Contains(t, out, "plain body")
}

func TestServerDropsIdleConnection(t *testing.T) {
	server, _ := startServer(t, 1)

	conn, err := net.Dial("tcp", server.Addr())
	require.NoError(t, err)
	defer conn.Close()

	start := time.Now()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	data, err := io.ReadAll(conn)
	require.NoError(t, err, "server should close, not the deadline")
	require.Empty(t, data, "an idle connection gets no response, just a close")
	require.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
	require.Less(t, time.Since(start), 4*time.Second)

	require.Eventually(t, func() bool {
		return server.Stats().ReadTimeouts.Load() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestServerStats(t *testing.T) {
	server, root := startServer(t, 5)
	publish(t, root, "0", "index.html", "<html>hi</html>")

	_ = exchange10(t, server.Addr(), "GET / HTTP/1.0\r\n\r\n")

	require.Eventually(t, func() bool {
		snap := server.Stats().Snapshot()
		return snap.TotalConnections == 1 && snap.BytesSent > 0
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, int64(0), server.Stats().ActiveConnections.Load())
}
