package inspect

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func quietOptions() Options {
	return Options{Timeout: 2 * time.Second, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, quietOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, srv
}

func TestFetchDetails(t *testing.T) {
	paths := make(chan string, 1)
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": 7, "type": "Herbivoro", "position": [12.5, 40], "age": 31,
			"energy": 55.5, "curiosity": 0.4, "experimentation_cooldown": 2,
			"inventory": [{"name": "iron", "properties": ["hard"]}],
			"known_discoveries": [{"name": "fire", "significance": 0.8, "type": "energy"}],
			"brain_info": {"fitness": 1.25, "generation": 4}
		}`)
	})

	d, err := c.Fetch(context.Background(), 7)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := <-paths; got != "/api/cell/7" {
		t.Errorf("path = %q, want /api/cell/7", got)
	}
	if d.ID != 7 || d.Type != "Herbivoro" || d.Age != 31 {
		t.Errorf("details = %+v", d)
	}
	if d.Position != [2]float64{12.5, 40} {
		t.Errorf("position = %v", d.Position)
	}
	if d.Energy == nil || *d.Energy != 55.5 {
		t.Errorf("energy = %v, want 55.5", d.Energy)
	}
	if len(d.Inventory) != 1 || len(d.KnownDiscoveries) != 1 {
		t.Errorf("inventory=%d discoveries=%d, want 1 and 1", len(d.Inventory), len(d.KnownDiscoveries))
	}
	if d.BrainInfo.Generation == nil || *d.BrainInfo.Generation != 4 {
		t.Errorf("brain_info = %+v", d.BrainInfo)
	}
}

func TestFetchDomainError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/cell/42" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, `{"error": "not found"}`)
	})

	d, err := c.Fetch(context.Background(), 42)
	if d != nil {
		t.Errorf("details = %+v, want nil", d)
	}
	var de *DomainError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want DomainError", err)
	}
	if errors.Is(err, ErrNetwork) {
		t.Error("domain error must not count as a network failure")
	}
	if got := UserMessage(err); got != "not found" {
		t.Errorf("UserMessage = %q, want %q", got, "not found")
	}
}

func TestFetchStatusError(t *testing.T) {
	for _, code := range []int{http.StatusNotFound, http.StatusInternalServerError, http.StatusBadGateway} {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
			io.WriteString(w, `{"error": "ignored"}`)
		})
		_, err := c.Fetch(context.Background(), 1)
		var se *StatusError
		if !errors.As(err, &se) || se.Code != code {
			t.Errorf("code %d: err = %v, want StatusError", code, err)
			continue
		}
		if got := UserMessage(err); got != MsgStatus {
			t.Errorf("code %d: UserMessage = %q, want %q", code, got, MsgStatus)
		}
	}
}

func TestFetchNetworkError(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	_, err := c.Fetch(context.Background(), 1)
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
	if got := UserMessage(err); got != MsgNetwork {
		t.Errorf("UserMessage = %q, want %q", got, MsgNetwork)
	}
}

func TestFetchUndecodableBody(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html>oops</html>`)
	})
	_, err := c.Fetch(context.Background(), 1)
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
	if got := UserMessage(err); got != MsgNetwork {
		t.Errorf("UserMessage = %q", got)
	}
}

func TestFetchHonoursContext(t *testing.T) {
	release := make(chan struct{})
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Fetch(ctx, 1)
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	for _, raw := range []string{"", "ws://localhost:8001", "::bad", "localhost:8001", "http://"} {
		if _, err := New(raw, quietOptions()); err == nil {
			t.Errorf("New(%q): want error", raw)
		}
	}
}

func TestBaseURLTrailingSlash(t *testing.T) {
	paths := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		io.WriteString(w, `{"id": 3}`)
	}))
	defer srv.Close()

	c, err := New(srv.URL+"/", quietOptions())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Fetch(context.Background(), 3); err != nil {
		t.Fatal(err)
	}
	if got := <-paths; got != "/api/cell/3" {
		t.Errorf("path = %q", got)
	}
}

func TestRequestTags(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id": 5}`)
	})

	first := NewRequest(5)
	second := NewRequest(5)
	if first.Tag == second.Tag {
		t.Fatal("requests share a tag")
	}

	res := c.Do(context.Background(), first)
	if res.Err != nil || res.Details == nil || res.Details.ID != 5 {
		t.Fatalf("Do = %+v", res)
	}
	if !first.Current(res) {
		t.Error("first request should accept its own result")
	}
	if second.Current(res) {
		t.Error("newer request must reject a stale result")
	}
	if (Request{}).Current(res) {
		t.Error("zero request must reject every result")
	}
}

func TestUserMessageNil(t *testing.T) {
	if got := UserMessage(nil); got != "" {
		t.Errorf("UserMessage(nil) = %q", got)
	}
}
