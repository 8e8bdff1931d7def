package netutil

import (
	"errors"
	"net"
	"testing"
	"time"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func TestSelectBindAddrPreferredFree(t *testing.T) {
	addr := freeAddr(t)

	got, err := SelectBindAddr(addr, nil, false)
	if err != nil {
		t.Fatalf("SelectBindAddr() error = %v", err)
	}
	if got != addr {
		t.Fatalf("SelectBindAddr() = %q, want %q", got, addr)
	}
}

func TestSelectBindAddrFallback(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen busy: %v", err)
	}
	defer func() { _ = busy.Close() }()
	free := freeAddr(t)

	got, err := SelectBindAddr(busy.Addr().String(), []string{busy.Addr().String(), free}, true)
	if err != nil {
		t.Fatalf("SelectBindAddr() error = %v", err)
	}
	if got != free {
		t.Fatalf("SelectBindAddr() = %q, want %q", got, free)
	}
}

func TestSelectBindAddrNoFallback(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen busy: %v", err)
	}
	defer func() { _ = busy.Close() }()

	if _, err := SelectBindAddr(busy.Addr().String(), []string{freeAddr(t)}, false); err == nil {
		t.Fatal("SelectBindAddr() = nil error; want preferred-in-use error")
	}
	if _, err := SelectBindAddr(busy.Addr().String(), nil, true); !errors.Is(err, ErrNoBindAddr) {
		t.Fatalf("SelectBindAddr() error = %v; want ErrNoBindAddr", err)
	}
}

func TestIsListening(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	if !IsListening(addr, time.Second) {
		t.Fatalf("IsListening(%s) = false; want true", addr)
	}
	_ = ln.Close()
	if IsListening(addr, 200*time.Millisecond) {
		t.Fatalf("IsListening(%s) = true after close; want false", addr)
	}
}
