package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type tokenServer struct {
	*httptest.Server
	hits atomic.Int32
	form atomic.Value
}

func newTokenServer(t *testing.T, status int) *tokenServer {
	t.Helper()
	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := ts.hits.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error = %v", err)
		}
		ts.form.Store(r.PostForm)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			w.Write([]byte(`{"reason":"Invalid client_id or client_secret","error":"invalid_client"}`))
			return
		}
		token := "token-" + string(rune('0'+n))
		w.Write([]byte(`{"access_token":"` + token + `","token_type":"bearer","expires_in":3600,"scope":"phone:read:admin"}`))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newSource(t *testing.T, tokenURL string) *TokenSource {
	t.Helper()
	src, err := NewTokenSource(Config{
		ClientID:     "client",
		ClientSecret: "secret",
		AccountID:    "account",
		TokenURL:     tokenURL,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewTokenSource() error = %v", err)
	}
	return src
}

func TestNewTokenSource_MissingCredentials(t *testing.T) {
	tests := []Config{
		{ClientSecret: "s", AccountID: "a"},
		{ClientID: "c", AccountID: "a"},
		{ClientID: "c", ClientSecret: "s"},
	}
	for _, cfg := range tests {
		if _, err := NewTokenSource(cfg, zerolog.Nop()); !errors.Is(err, ErrMissingCredentials) {
			t.Errorf("NewTokenSource(%+v) error = %v, want ErrMissingCredentials", cfg, err)
		}
	}
}

func TestTokenSource_RequestsAccountCredentialsGrant(t *testing.T) {
	server := newTokenServer(t, http.StatusOK)
	src := newSource(t, server.URL)

	tok, err := src.TokenContext(context.Background())
	if err != nil {
		t.Fatalf("TokenContext() error = %v", err)
	}
	if tok.AccessToken != "token-1" {
		t.Errorf("AccessToken = %s, want token-1", tok.AccessToken)
	}

	form := server.form.Load().(url.Values)
	want := map[string]string{
		"grant_type":    "account_credentials",
		"account_id":    "account",
		"client_id":     "client",
		"client_secret": "secret",
	}
	for key, value := range want {
		if got := form[key]; len(got) != 1 || got[0] != value {
			t.Errorf("form[%s] = %v, want %s", key, got, value)
		}
	}
}

func TestTokenSource_CachesUntilInvalidated(t *testing.T) {
	server := newTokenServer(t, http.StatusOK)
	src := newSource(t, server.URL)

	for i := 0; i < 3; i++ {
		if _, err := src.Token(); err != nil {
			t.Fatalf("Token() error = %v", err)
		}
	}
	if got := server.hits.Load(); got != 1 {
		t.Errorf("token requests = %d, want 1", got)
	}

	src.Invalidate()
	tok, err := src.Token()
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if tok.AccessToken != "token-2" {
		t.Errorf("AccessToken after invalidate = %s, want token-2", tok.AccessToken)
	}
	if got := server.hits.Load(); got != 2 {
		t.Errorf("token requests = %d, want 2", got)
	}
}

func TestTokenSource_RefreshesBeforeExpiry(t *testing.T) {
	server := newTokenServer(t, http.StatusOK)
	src := newSource(t, server.URL)

	if _, err := src.Token(); err != nil {
		t.Fatalf("Token() error = %v", err)
	}

	// 59m30s later the token is inside the one minute refresh buffer.
	src.now = func() time.Time { return time.Now().Add(59*time.Minute + 30*time.Second) }

	tok, err := src.Token()
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if tok.AccessToken != "token-2" {
		t.Errorf("AccessToken = %s, want token-2", tok.AccessToken)
	}
}

func TestTokenSource_Error(t *testing.T) {
	server := newTokenServer(t, http.StatusUnauthorized)
	src := newSource(t, server.URL)

	if _, err := src.Token(); err == nil {
		t.Fatal("Token() expected error for rejected credentials")
	}
	if _, err := src.Token(); err == nil {
		t.Fatal("Token() expected error on retry")
	}
	if got := server.hits.Load(); got != 2 {
		t.Errorf("token requests = %d, want 2 (errors are not cached)", got)
	}
}

func TestTokenSource_UsesConfiguredHTTPClient(t *testing.T) {
	server := newTokenServer(t, http.StatusOK)

	var used atomic.Bool
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		used.Store(true)
		return http.DefaultTransport.RoundTrip(r)
	})}

	src, err := NewTokenSource(Config{
		ClientID: "c", ClientSecret: "s", AccountID: "a",
		TokenURL:   server.URL,
		HTTPClient: client,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewTokenSource() error = %v", err)
	}
	if _, err := src.Token(); err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if !used.Load() {
		t.Error("configured HTTP client was not used")
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
