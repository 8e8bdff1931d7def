//go:build !(linux || freebsd || openbsd || netbsd || dragonfly)

package trash

const supported = false

var moveToTrash = func(string) error { return ErrUnsupported }
