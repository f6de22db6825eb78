package pubfile

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// OpenFile is a file that passed SafeOpen's checks, along with the metadata
// discovered during them. Length may of course change at runtime; take care.
type OpenFile struct {
	File   *os.File
	Mtime  time.Time
	Length uint64
}

// SafeOpen opens a file for read after somewhat pedantically verifying its
// permissions, in the vein of djb's file_open: world-readable regular files
// only, and other-executable without owner-executable marks a file withheld
// on purpose. Anything that fails a check reads as not found, so permission
// details never leak to the client.
func SafeOpen(path string) (*OpenFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, pathErrorReason(err))
	}

	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		f.Close()
		return nil, os.NewSyscallError("fstat", err)
	}

	switch {
	case st.Mode&0o444 != 0o444:
		f.Close()
		return nil, fmt.Errorf("%w: not ugo+r", ErrNotFound)
	case st.Mode&0o101 == 0o001:
		f.Close()
		return nil, fmt.Errorf("%w: o+x but u-x", ErrNotFound)
	case st.Mode&unix.S_IFMT != unix.S_IFREG:
		f.Close()
		if st.Mode&unix.S_IFMT == unix.S_IFDIR {
			return nil, fmt.Errorf("%w: is a directory", ErrNotFound)
		}
		return nil, fmt.Errorf("%w: not a regular file", ErrNotFound)
	}

	return &OpenFile{
		File:   f,
		Mtime:  time.Unix(st.Mtim.Sec, st.Mtim.Nsec),
		Length: uint64(st.Size),
	}, nil
}

func pathErrorReason(err error) string {
	if pe, ok := err.(*os.PathError); ok {
		return pe.Err.Error()
	}
	return err.Error()
}
