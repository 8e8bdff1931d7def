//go:build linux || freebsd || openbsd || netbsd || dragonfly

package trash

import xdgtrash "github.com/rkoesters/xdg/trash"

const supported = true

var moveToTrash = xdgtrash.Trash
