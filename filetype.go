package pubfile

import (
	"bytes"
	"os"

	"github.com/dgraph-io/ristretto"
)

// MimeTypes guesses content types from file extensions. The extension is the
// sequence of bytes after the last period, so things like .tar.gz can't get a
// type of their own. For a file foo.ext an environment variable CT_ext, if
// present, overrides the built-in mapping; resolved answers are kept in a
// small cache so the environment is not consulted on every request.
type MimeTypes struct {
	cache *ristretto.Cache
}

func NewMimeTypes() (*MimeTypes, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1 << 10,
		MaxCost:     1 << 16,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &MimeTypes{cache: cache}, nil
}

// FromPath takes a guess at the MIME type of the file at path.
func (m *MimeTypes) FromPath(path []byte) string {
	ext := path
	if i := bytes.LastIndexByte(path, '.'); i >= 0 {
		ext = path[i+1:]
	}
	key := string(ext)

	if cached, ok := m.cache.Get(key); ok {
		return cached.(string)
	}

	ct, ok := envMapping(key)
	if !ok {
		ct = cannedMapping(key)
	}
	m.cache.Set(key, ct, int64(len(ct)))
	return ct
}

func cannedMapping(ext string) string {
	switch ext {
	case "html":
		return "text/html"
	case "gif":
		return "image/gif"
	case "jpeg", "jpg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "pdf":
		return "application/pdf"
	case "css":
		return "text/css"
	default:
		return "text/plain"
	}
}

func envMapping(ext string) (string, bool) {
	return os.LookupEnv("CT_" + ext)
}
