package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"uwuchat/internal/core"
	"uwuchat/internal/httpapi"
)

// cliServer starts an API server backed by a fresh state and returns the
// state for seeding users plus the server's base URL.
func cliServer(t *testing.T) (*core.State, string) {
	t.Helper()
	st := core.NewState(zerolog.Nop(), core.Options{QueueDepth: 8})
	srv := httpapi.New(st, zerolog.Nop(), httpapi.Options{})
	ts := httptest.NewServer(srv.Echo())
	t.Cleanup(ts.Close)
	return st, ts.URL
}

// ---------------------------------------------------------------------------
// RunCLI: subcommand dispatch
// ---------------------------------------------------------------------------

func TestRunCLIVersionReturnsTrue(t *testing.T) {
	if !RunCLI([]string{"version"}, "http://unused.invalid") {
		t.Error("RunCLI(version) should return true")
	}
}

func TestRunCLIUnknownSubcommandReturnsFalse(t *testing.T) {
	if RunCLI([]string{"nonexistent-cmd"}, "http://unused.invalid") {
		t.Error("RunCLI(unknown) should return false")
	}
}

func TestRunCLIEmptyArgsReturnsFalse(t *testing.T) {
	if RunCLI([]string{}, "http://unused.invalid") {
		t.Error("RunCLI([]) should return false")
	}
}

func TestRunCLINilArgsReturnsFalse(t *testing.T) {
	if RunCLI(nil, "http://unused.invalid") {
		t.Error("RunCLI(nil) should return false")
	}
}

// ---------------------------------------------------------------------------
// "status" and "users" subcommands
// ---------------------------------------------------------------------------

func TestCLIStatusReturnsTrue(t *testing.T) {
	_, base := cliServer(t)
	if !RunCLI([]string{"status"}, base) {
		t.Error("RunCLI(status) should return true")
	}
}

func TestCLIUsersEmptyReturnsTrue(t *testing.T) {
	_, base := cliServer(t)
	if !RunCLI([]string{"users"}, base) {
		t.Error("RunCLI(users) should return true")
	}
}

func TestCLIUsersWithConnectedUserReturnsTrue(t *testing.T) {
	st, base := cliServer(t)
	if _, err := st.Open("alice"); err != nil {
		t.Fatalf("Open(alice): %v", err)
	}
	if !RunCLI([]string{"users"}, base) {
		t.Error("RunCLI(users) should return true")
	}
}

// ---------------------------------------------------------------------------
// fetchJSON
// ---------------------------------------------------------------------------

func TestFetchJSONDecodesHealth(t *testing.T) {
	st, base := cliServer(t)
	if _, err := st.Open("alice"); err != nil {
		t.Fatalf("Open(alice): %v", err)
	}

	var health struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}
	if err := fetchJSON(base+"/health", &health); err != nil {
		t.Fatalf("fetchJSON: %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("status: got %q, want %q", health.Status, "ok")
	}
	if health.Clients != 1 {
		t.Errorf("clients: got %d, want 1", health.Clients)
	}
}

func TestFetchJSONRejectsNon200(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	var out struct{}
	if err := fetchJSON(ts.URL+"/health", &out); err == nil {
		t.Error("expected error for non-200 response")
	}
}
