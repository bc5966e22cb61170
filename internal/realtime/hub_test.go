package realtime

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/videocatalog-backend/internal/platform/logger"
)

func recvEvent(t *testing.T, ch <-chan Event, timeout time.Duration) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for event")
	}
	return Event{}
}

func TestHubBroadcastOrderingAndClose(t *testing.T) {
	hub := NewHub(logger.Nop())
	c := hub.NewClient()

	hub.Broadcast(Event{Type: EventJobStarted, JobID: "j1"})
	hub.Broadcast(Event{Type: EventJobSucceeded, JobID: "j1"})

	if got := recvEvent(t, c.Outbound, time.Second); got.Type != EventJobStarted {
		t.Fatalf("first event: want=%s got=%s", EventJobStarted, got.Type)
	}
	if got := recvEvent(t, c.Outbound, time.Second); got.Type != EventJobSucceeded {
		t.Fatalf("second event: want=%s got=%s", EventJobSucceeded, got.Type)
	}

	hub.CloseClient(c)
	hub.CloseClient(c)
	if _, ok := <-c.Outbound; ok {
		t.Fatalf("outbound should be closed after disconnect")
	}
	if hub.Clients() != 0 {
		t.Fatalf("expected no clients, got %d", hub.Clients())
	}
	// broadcasting with no clients must not panic
	hub.Broadcast(Event{Type: EventJobFailed, JobID: "j2"})
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(logger.Nop())
	c := hub.NewClient()
	defer hub.CloseClient(c)

	for i := 0; i < clientBuffer+5; i++ {
		hub.Broadcast(Event{Type: EventJobProgress, JobID: "j1"})
	}
	if len(c.Outbound) != clientBuffer {
		t.Fatalf("expected buffer to hold %d events, got %d", clientBuffer, len(c.Outbound))
	}
}

func TestHubServeHTTPStreamsEvents(t *testing.T) {
	hub := NewHub(logger.Nop())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := hub.NewClient()
		defer hub.CloseClient(c)
		hub.ServeHTTP(w, r, c)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	// wait for the connected comment so the client is registered
	if line, err := reader.ReadString('\n'); err != nil || !strings.HasPrefix(line, ": connected") {
		t.Fatalf("expected connected comment, got %q (%v)", line, err)
	}
	hub.Broadcast(Event{Type: EventJobEnqueued, JobID: "j9"})

	var sawEvent, sawData bool
	for !(sawEvent && sawData) {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		if strings.HasPrefix(line, "event: job.enqueued") {
			sawEvent = true
		}
		if strings.HasPrefix(line, "data: ") && strings.Contains(line, `"jobId":"j9"`) {
			sawData = true
		}
	}
}
