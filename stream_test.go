package nrepl

import (
	"sync"
	"testing"
	"time"

	"nrepl.dev/nrepl/transport"
)

func TestNeedInputReader_EmitsNeedInputBeforeBlocking(t *testing.T) {
	var mu sync.Mutex
	var got []transport.Message
	send := func(m transport.Message) error {
		mu.Lock()
		got = append(got, m)
		mu.Unlock()
		return nil
	}

	r := newNeedInputReader()
	r.setActive(send, "sess-1", "req-1")

	readDone := make(chan struct{})
	buf := make([]byte, 16)
	var n int
	go func() {
		var err error
		n, err = r.Read(buf)
		if err != nil {
			t.Errorf("Read: %v", err)
		}
		close(readDone)
	}()

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		found := len(got) > 0
		mu.Unlock()
		if found {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for a need-input message")
		case <-time.After(time.Millisecond):
		}
	}

	mu.Lock()
	msg := got[0]
	mu.Unlock()
	if !msg.HasStatus("need-input") {
		t.Fatalf("first message = %v, want status need-input", msg)
	}
	if msg.ID() != "req-1" || msg["session"] != "sess-1" {
		t.Fatalf("need-input message = %v, want id=req-1 session=sess-1", msg)
	}

	r.Feed([]byte("hello"))
	<-readDone
	if string(buf[:n]) != "hello" {
		t.Fatalf("Read returned %q, want %q", buf[:n], "hello")
	}
}

func TestNeedInputReader_NoNeedInputWhenDataAlreadyPending(t *testing.T) {
	var mu sync.Mutex
	var got []transport.Message
	send := func(m transport.Message) error {
		mu.Lock()
		got = append(got, m)
		mu.Unlock()
		return nil
	}

	r := newNeedInputReader()
	r.setActive(send, "sess-1", "req-1")
	r.Feed([]byte("buffered"))

	buf := make([]byte, 16)
	n, err := r.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "buffered" {
		t.Fatalf("Read = %q, want %q", buf[:n], "buffered")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 0 {
		t.Fatalf("expected no need-input message when data was already pending, got %v", got)
	}
}
