package server

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/desertthunder/songmix/internal/session"
	"github.com/desertthunder/songmix/internal/shared"
)

const exchangeTimeout = 10 * time.Second

// Exchanger trades an authorization code for a token snapshot.
type Exchanger interface {
	ExchangeCode(ctx context.Context, code string) (session.Snapshot, error)
}

// OAuthResult contains the result of an OAuth authorization flow.
type OAuthResult struct {
	Tokens session.Snapshot
	err    error
}

func (o OAuthResult) Err() error {
	return o.err
}

// OAuthHandler handles the authorization code callback. It processes one request and rejects the rest.
type OAuthHandler struct {
	exchanger  Exchanger
	state      string
	path       string
	resultChan chan OAuthResult
	once       sync.Once

	mu          sync.Mutex
	callbackHit bool
}

// NewOAuthHandler creates a handler serving GET path. state must match the value sent to the authorize URL.
func NewOAuthHandler(exchanger Exchanger, state, path string) *OAuthHandler {
	if path == "" {
		path = "/callback"
	}
	return &OAuthHandler{
		exchanger:  exchanger,
		state:      state,
		path:       path,
		resultChan: make(chan OAuthResult, 1),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *OAuthHandler) Routes() []string {
	return []string{"GET " + h.path}
}

// ServeHTTP validates the callback, performs the exchange, and publishes the result.
func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.callbackHit {
		h.mu.Unlock()
		writePage(w, http.StatusBadRequest, "Callback already processed", "This authorization link has already been used.")
		return
	}
	h.callbackHit = true
	h.mu.Unlock()

	q := r.URL.Query()
	if q.Get("state") != h.state {
		h.Send(OAuthResult{err: &shared.AuthError{Reason: "invalid state parameter"}})
		writePage(w, http.StatusBadRequest, "Authorization failed", "The state parameter did not match.")
		return
	}

	code := q.Get("code")
	if code == "" {
		reason := q.Get("error")
		if reason == "" {
			reason = "missing authorization code"
		}
		if desc := q.Get("error_description"); desc != "" {
			reason += ": " + desc
		}
		h.Send(OAuthResult{err: &shared.AuthError{Reason: reason}})
		writePage(w, http.StatusBadRequest, "Authorization failed", reason)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), exchangeTimeout)
	defer cancel()

	snap, err := h.exchanger.ExchangeCode(ctx, code)
	if err != nil {
		h.Send(OAuthResult{err: fmt.Errorf("token exchange failed: %w", err)})
		writePage(w, http.StatusBadGateway, "Token exchange failed", err.Error())
		return
	}

	h.Send(OAuthResult{Tokens: snap})
	writePage(w, http.StatusOK, "Authorization Successful", "You can close this window and return to the terminal.")
}

// Send publishes result. Only the first call has any effect.
func (h *OAuthHandler) Send(result OAuthResult) {
	h.once.Do(func() {
		h.resultChan <- result
		close(h.resultChan)
	})
}

// Result returns the result channel for receiving OAuth flow completion.
//
// Channel will receive exactly one result and then be closed.
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.resultChan
}

var page = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: {{if .OK}}#1DB954{{else}}#E22134{{end}}; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>{{.Title}}</h1>
        <p>{{.Message}}</p>
    </div>
</body>
</html>
`))

func writePage(w http.ResponseWriter, status int, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = page.Execute(w, struct {
		Title, Message string
		OK             bool
	}{title, message, status == http.StatusOK})
}
