package lbacclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openmrs/openmrs-module-locationbasedaccess/internal/platform/middleware"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{Origin: srv.URL + "/openmrs", Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return c, srv
}

func TestFetchCounts_Success(t *testing.T) {
	var gotPath, gotAccept string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results": {"Male": 120, "Female": 98}}`))
	})

	got, err := c.FetchCounts(context.Background(), PatientsCountPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/openmrs/ws/rest/v1/lbac/locationwise-patients-count" {
		t.Errorf("unexpected request path %s", gotPath)
	}
	if gotAccept != "application/json" {
		t.Errorf("expected Accept application/json, got %q", gotAccept)
	}
	if !reflect.DeepEqual(got.Labels(), []string{"Male", "Female"}) {
		t.Errorf("labels = %v", got.Labels())
	}
	if !reflect.DeepEqual(got.Values(), []float64{120, 98}) {
		t.Errorf("values = %v", got.Values())
	}
}

func TestFetchCounts_PreservesServerOrder(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results": {"Zomba": 1, "Amani": 2, "Kisumu": 3, "Bwaila": 0}}`))
	})

	got, err := c.FetchCounts(context.Background(), UsersCountPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"Zomba", "Amani", "Kisumu", "Bwaila"}
	if !reflect.DeepEqual(got.Labels(), want) {
		t.Errorf("labels = %v, want %v", got.Labels(), want)
	}
}

func TestFetchCounts_EmptyResults(t *testing.T) {
	for name, body := range map[string]string{
		"empty object": `{"results": {}}`,
		"null results": `{"results": null}`,
		"absent":       `{"other": 1}`,
	} {
		t.Run(name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			})
			got, err := c.FetchCounts(context.Background(), EncountersCountPath)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got == nil || len(got) != 0 {
				t.Errorf("expected empty non-nil counts, got %#v", got)
			}
		})
	}
}

func TestFetchCounts_Malformed(t *testing.T) {
	for name, body := range map[string]string{
		"not json":          `<html>login</html>`,
		"results array":     `{"results": [1, 2]}`,
		"non numeric value": `{"results": {"Male": "many"}}`,
		"top level array":   `[]`,
	} {
		t.Run(name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			})
			_, err := c.FetchCounts(context.Background(), PatientsCountPath)
			if !errors.Is(err, ErrMalformedResponse) {
				t.Errorf("expected ErrMalformedResponse, got %v", err)
			}
		})
	}
}

func TestFetchCounts_StatusError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := c.FetchCounts(context.Background(), PatientsCountPath)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got %T (%v)", err, err)
	}
	if se.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", se.StatusCode)
	}
	if StatusCode(err) != http.StatusInternalServerError {
		t.Errorf("StatusCode() = %d", StatusCode(err))
	}
}

func TestFetchCounts_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	origin := srv.URL
	srv.Close()

	c, err := New(Config{Origin: origin, Timeout: time.Second})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	_, err = c.FetchCounts(context.Background(), PatientsCountPath)
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransportError, got %T (%v)", err, err)
	}
	if StatusCode(err) != 0 {
		t.Errorf("expected no status code for transport error, got %d", StatusCode(err))
	}
}

func TestFetchCounts_Cancelled(t *testing.T) {
	release := make(chan struct{})
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.FetchCounts(ctx, PatientsCountPath)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got %v", err)
	}
}

func TestFetchCounts_EmptyPathIssuesNoRequest(t *testing.T) {
	var hits int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	})

	_, err := c.FetchCounts(context.Background(), "  ")
	if !errors.Is(err, ErrEmptyResourcePath) {
		t.Errorf("expected ErrEmptyResourcePath, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Errorf("expected no request, got %d", hits)
	}
}

func TestFetchCounts_OneRequestPerCall(t *testing.T) {
	var hits int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`{"results": {"A": 1}}`))
	})

	for i := 0; i < 3; i++ {
		if _, err := c.FetchCounts(context.Background(), PatientsCountPath); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Errorf("expected 3 requests, got %d", got)
	}
}

func TestFetchCounts_BasicAuthAndRequestID(t *testing.T) {
	var user, pass, rid string
	var ok bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok = r.BasicAuth()
		rid = r.Header.Get(middleware.RequestIDHeader)
		w.Write([]byte(`{"results": {}}`))
	}))
	defer srv.Close()

	c, err := New(Config{Origin: srv.URL, Username: "admin", Password: "Admin123"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx := middleware.WithRequestID(context.Background(), "req-42")
	if _, err := c.FetchCounts(ctx, UsersCountPath); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || user != "admin" || pass != "Admin123" {
		t.Errorf("expected basic auth admin/Admin123, got %q/%q (ok=%v)", user, pass, ok)
	}
	if rid != "req-42" {
		t.Errorf("expected request id req-42, got %q", rid)
	}
}

type staticTokens string

func (s staticTokens) Issue() (string, error) { return string(s), nil }

func TestFetchCounts_BearerToken(t *testing.T) {
	var authz string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz = r.Header.Get("Authorization")
		w.Write([]byte(`{"results": {}}`))
	}))
	defer srv.Close()

	c, err := New(Config{Origin: srv.URL, Tokens: staticTokens("tok-1")})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, err := c.FetchCounts(context.Background(), UsersCountPath); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if authz != "Bearer tok-1" {
		t.Errorf("expected bearer token, got %q", authz)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for empty origin")
	}
	if _, err := New(Config{Origin: "localhost:8080"}); err == nil || !strings.Contains(err.Error(), "http") {
		t.Errorf("expected scheme error, got %v", err)
	}
}
