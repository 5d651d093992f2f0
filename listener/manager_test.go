package listener

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"pacsgo/pacs"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// freePort reserves an ephemeral port and returns it closed, so the
// manager under test can bind it.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestAcquireReleaseLifecycle(t *testing.T) {
	m := NewManager(Config{AETitle: "PACSGO", Port: freePort(t), Logger: testLogger()})

	l, err := m.Acquire(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if l.AETitle() != "PACSGO" {
		t.Errorf("AETitle() = %q", l.AETitle())
	}
	if !l.Ready() {
		t.Error("listener not ready after acquire")
	}
	if err := l.Release(); err != nil {
		t.Errorf("Release() error = %v", err)
	}
	if l.Ready() {
		t.Error("listener still ready after release")
	}
	// Release must be idempotent.
	if err := l.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}
}

func TestAcquireFailsWhenPortTaken(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	m := NewManager(Config{AETitle: "PACSGO", Port: port, Logger: testLogger()})
	_, err = m.Acquire(context.Background(), t.TempDir())
	if !errors.Is(err, pacs.ErrListenerBindFailed) {
		t.Fatalf("error = %v, want ErrListenerBindFailed", err)
	}

	// The failed acquire must not leave the lock held.
	l, err := NewManager(Config{AETitle: "PACSGO", Port: freePort(t), Logger: testLogger()}).
		Acquire(context.Background(), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	l.Release()
}

func TestAcquireSerializesRetrieves(t *testing.T) {
	m := NewManager(Config{AETitle: "PACSGO", Port: freePort(t), Logger: testLogger()})

	first, err := m.Acquire(context.Background(), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	acquired := make(chan pacs.Listener)
	go func() {
		second, err := m.Acquire(context.Background(), t.TempDir())
		if err != nil {
			t.Error(err)
			return
		}
		acquired <- second
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire succeeded while first still held")
	case <-time.After(100 * time.Millisecond):
	}

	first.Release()
	select {
	case second := <-acquired:
		second.Release()
	case <-time.After(2 * time.Second):
		t.Fatal("second acquire did not proceed after release")
	}
}
