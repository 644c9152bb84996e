package ws

import (
	"errors"
	"testing"

	"github.com/taskhub/realtime/internal/registry"
)

func TestSessionSendNeverBlocks(t *testing.T) {
	s := &Session{send: make(chan []byte, 1), done: make(chan struct{})}

	if err := s.Send([]byte("a")); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := s.Send([]byte("b")); !errors.Is(err, registry.ErrSendQueueFull) {
		t.Fatalf("second send err = %v, want ErrSendQueueFull", err)
	}
	if got := string(<-s.send); got != "a" {
		t.Errorf("queued frame = %q", got)
	}
}

func TestSessionSendAfterClose(t *testing.T) {
	s := &Session{send: make(chan []byte, 1), done: make(chan struct{})}
	s.closed.Store(true)
	close(s.done)

	if err := s.Send([]byte("a")); !errors.Is(err, registry.ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
	if s.Open() {
		t.Error("closed session reports open")
	}
}

func TestSessionIdentity(t *testing.T) {
	s := &Session{}
	if _, ok := s.User(); ok {
		t.Fatal("new session should be unauthenticated")
	}
	if s.Project() != "" {
		t.Fatal("new session should have no project")
	}
}
