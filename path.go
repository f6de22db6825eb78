package pubfile

// unescape decodes URL percent-escaping in place and returns the shortened
// slice. A truncated or non-hex escape fails the request.
func unescape(path []byte) ([]byte, error) {
	i, j := 0, 0
	for i < len(path) {
		c := path[i]
		i++

		if c != '%' {
			path[j] = c
			j++
			continue
		}
		if len(path)-i < 2 {
			return nil, ErrBadRequest
		}
		a, aok := fromHex(path[i])
		b, bok := fromHex(path[i+1])
		if !aok || !bok {
			return nil, ErrBadRequest
		}
		path[j] = a<<4 | b
		j++
		i += 2
	}
	return path[:j], nil
}

func fromHex(b byte) (byte, bool) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', true
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, true
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, true
	}
	return 0, false
}

// sanitize cleans a client-supplied path for use as a relative file path, in
// place: NULs become '_', duplicate slashes collapse, and a dot right after a
// slash becomes ':' so dotfiles (and dot-dot traversal) can't be addressed.
// Partially paranoia and partially about log tidiness.
func sanitize(path []byte) []byte {
	j := 0
	for i := 0; i < len(path); i++ {
		switch c := path[i]; c {
		case 0:
			path[j] = '_'
			j++
		case '/':
			if i == 0 || path[i-1] != '/' {
				path[j] = '/'
				j++
			}
		case '.':
			if i > 0 && path[i-1] == '/' {
				path[j] = ':'
			} else {
				path[j] = '.'
			}
			j++
		default:
			path[j] = c
			j++
		}
	}
	return path[:j]
}
