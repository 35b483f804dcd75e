package gmail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
)

var scopeNames = map[string]string{
	"readonly": gmailapi.GmailReadonlyScope,
	"send":     gmailapi.GmailSendScope,
	"modify":   gmailapi.GmailModifyScope,
}

// Scopes maps short scope names (readonly, send, modify) to Gmail scope URLs.
func Scopes(names []string) ([]string, error) {
	scopes := make([]string, 0, len(names))
	for _, n := range names {
		s, ok := scopeNames[n]
		if !ok {
			return nil, fmt.Errorf("unknown gmail scope %q", n)
		}
		scopes = append(scopes, s)
	}
	return scopes, nil
}

// CodePrompter asks the user for the authorization code after they have
// visited authURL.
type CodePrompter func(ctx context.Context, authURL string) (string, error)

type AuthOptions struct {
	CredentialsFile string
	Scopes          []string
	Store           TokenStore
	// Prompt switches consent to manual code entry. When nil a loopback
	// redirect server collects the code.
	Prompt CodePrompter
	Out    io.Writer
	Logger *slog.Logger
}

type Authenticator struct {
	config *oauth2.Config
	store  TokenStore
	prompt CodePrompter
	out    io.Writer
	logger *slog.Logger
}

func NewAuthenticator(opts AuthOptions) (*Authenticator, error) {
	b, err := os.ReadFile(opts.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}
	config, err := google.ConfigFromJSON(b, opts.Scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	return newAuthenticator(config, opts), nil
}

func newAuthenticator(config *oauth2.Config, opts AuthOptions) *Authenticator {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Authenticator{config: config, store: opts.Store, prompt: opts.Prompt, out: out, logger: logger}
}

// HTTPClient returns a client authorized for Gmail. A stored token is
// reused and refreshed as needed; refreshed tokens are written back to the
// store. Consent runs only when no usable token exists.
func (a *Authenticator) HTTPClient(ctx context.Context) (*http.Client, error) {
	tok, err := a.store.Load()
	switch {
	case errors.Is(err, ErrNoToken):
		a.logger.Info("no stored token, starting consent")
		if tok, err = a.Authorize(ctx); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("loading token: %w", err)
	case !tok.Valid() && tok.RefreshToken == "":
		a.logger.Info("stored token expired and cannot be refreshed, starting consent")
		if tok, err = a.Authorize(ctx); err != nil {
			return nil, err
		}
	}

	ts := &savingTokenSource{
		base:   a.config.TokenSource(ctx, tok),
		store:  a.store,
		last:   tok.AccessToken,
		logger: a.logger,
	}
	return oauth2.NewClient(ctx, ts), nil
}

// Reset discards the stored token so the next HTTPClient call, or an
// explicit Authorize, starts from consent.
func (a *Authenticator) Reset() error {
	if err := a.store.Clear(); err != nil {
		return fmt.Errorf("clearing token: %w", err)
	}
	a.logger.Info("stored oauth token cleared")
	return nil
}

// Authorize runs the consent flow and saves the resulting token.
func (a *Authenticator) Authorize(ctx context.Context) (*oauth2.Token, error) {
	var (
		tok *oauth2.Token
		err error
	)
	if a.prompt != nil {
		tok, err = a.manualConsent(ctx)
	} else {
		tok, err = a.loopbackConsent(ctx)
	}
	if err != nil {
		return nil, err
	}
	if err := a.store.Save(tok); err != nil {
		return nil, fmt.Errorf("saving token: %w", err)
	}
	a.logger.Info("oauth token saved")
	return tok, nil
}

func (a *Authenticator) manualConsent(ctx context.Context) (*oauth2.Token, error) {
	authURL := a.config.AuthCodeURL(uuid.NewString(), oauth2.AccessTypeOffline)
	code, err := a.prompt(ctx, authURL)
	if err != nil {
		return nil, fmt.Errorf("unable to read authorization code: %w", err)
	}
	tok, err := a.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve token from web: %w", err)
	}
	return tok, nil
}

func (a *Authenticator) loopbackConsent(ctx context.Context) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("starting redirect listener: %w", err)
	}
	cfg := *a.config
	cfg.RedirectURL = "http://" + ln.Addr().String() + "/"
	state := uuid.NewString()

	codes := make(chan string, 1)
	errs := make(chan error, 1)
	srv := &http.Server{Handler: callbackHandler(state, codes, errs)}
	go srv.Serve(ln)
	defer srv.Close()

	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
	fmt.Fprintf(a.out, "Go to the following link in your browser to authorize access:\n%v\n", authURL)

	select {
	case code := <-codes:
		tok, err := cfg.Exchange(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("unable to retrieve token from web: %w", err)
		}
		return tok, nil
	case err := <-errs:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func callbackHandler(state string, codes chan<- string, errs chan<- error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		if e := q.Get("error"); e != "" {
			http.Error(w, "authorization denied", http.StatusForbidden)
			select {
			case errs <- fmt.Errorf("authorization denied: %s", e):
			default:
			}
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, "Authorization received. You can close this window.")
		select {
		case codes <- code:
		default:
		}
	})
}

// savingTokenSource writes every newly minted token back to the store.
type savingTokenSource struct {
	mu     sync.Mutex
	base   oauth2.TokenSource
	store  TokenStore
	last   string
	logger *slog.Logger
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		if err := s.store.Save(tok); err != nil {
			s.logger.Warn("could not persist refreshed token", "error", err)
		} else {
			s.logger.Debug("refreshed token saved")
		}
		s.last = tok.AccessToken
	}
	return tok, nil
}
