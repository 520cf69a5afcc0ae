// Package auth obtains Zoom server-to-server OAuth tokens using the
// account_credentials grant.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// DefaultTokenURL is Zoom's OAuth token endpoint.
const DefaultTokenURL = "https://zoom.us/oauth/token"

// GrantType is the Zoom server-to-server grant.
const GrantType = "account_credentials"

// ErrMissingCredentials is returned when client id, secret or account id is empty.
var ErrMissingCredentials = errors.New("client_id, client_secret and account_id are required")

var tokenRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "zoomphone_token_requests_total",
	Help: "Total OAuth token requests by outcome",
}, []string{"outcome"})

// Config holds the account credentials.
type Config struct {
	ClientID     string
	ClientSecret string
	AccountID    string

	// TokenURL defaults to DefaultTokenURL.
	TokenURL string

	// RefreshBuffer renews a token this long before it expires. Defaults to one minute.
	RefreshBuffer time.Duration

	// HTTPClient is used for token requests. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// TokenSource caches one access token and fetches a new one when it is about
// to expire or has been invalidated. It is safe for concurrent use and
// implements oauth2.TokenSource.
type TokenSource struct {
	oauth         clientcredentials.Config
	httpClient    *http.Client
	refreshBuffer time.Duration
	logger        zerolog.Logger
	now           func() time.Time

	mu    sync.RWMutex
	token *oauth2.Token
}

var _ oauth2.TokenSource = (*TokenSource)(nil)

// NewTokenSource validates cfg and returns a token source. No request is made
// until the first token is needed.
func NewTokenSource(cfg Config, logger zerolog.Logger) (*TokenSource, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.AccountID == "" {
		return nil, ErrMissingCredentials
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.RefreshBuffer <= 0 {
		cfg.RefreshBuffer = time.Minute
	}

	return &TokenSource{
		oauth: clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			EndpointParams: url.Values{
				"grant_type": {GrantType},
				"account_id": {cfg.AccountID},
			},
			AuthStyle: oauth2.AuthStyleInParams,
		},
		httpClient:    cfg.HTTPClient,
		refreshBuffer: cfg.RefreshBuffer,
		logger:        logger.With().Str("component", "auth").Logger(),
		now:           time.Now,
	}, nil
}

// Token implements oauth2.TokenSource.
func (s *TokenSource) Token() (*oauth2.Token, error) {
	return s.TokenContext(context.Background())
}

// TokenContext returns a valid token, requesting a new one if needed.
func (s *TokenSource) TokenContext(ctx context.Context) (*oauth2.Token, error) {
	s.mu.RLock()
	if tok := s.token; s.fresh(tok) {
		s.mu.RUnlock()
		return tok, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fresh(s.token) {
		return s.token, nil
	}

	if s.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	}
	tok, err := s.oauth.Token(ctx)
	if err != nil {
		tokenRequestsTotal.WithLabelValues("error").Inc()
		s.logger.Error().Err(err).Msg("Token request failed")
		return nil, fmt.Errorf("request access token: %w", err)
	}
	tokenRequestsTotal.WithLabelValues("success").Inc()

	s.token = tok
	s.logger.Debug().Time("expiry", tok.Expiry).Msg("Obtained access token")
	return tok, nil
}

// Invalidate drops the cached token so the next call fetches a new one. The
// client calls it after a 401.
func (s *TokenSource) Invalidate() {
	s.mu.Lock()
	s.token = nil
	s.mu.Unlock()
	s.logger.Debug().Msg("Access token invalidated")
}

func (s *TokenSource) fresh(tok *oauth2.Token) bool {
	if tok == nil || tok.AccessToken == "" {
		return false
	}
	if tok.Expiry.IsZero() {
		return true
	}
	return s.now().Add(s.refreshBuffer).Before(tok.Expiry)
}
