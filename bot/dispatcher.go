package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Attachment is a local file to bundle into the reply. ContentType may be
// left empty, in which case it is derived from the file extension.
type Attachment struct {
	Path        string
	ContentType string
}

// FetchFailure records a resource that could not be retrieved.
type FetchFailure struct {
	Name string
	Err  error
}

// DispatchResult is what a command handler hands to the composer.
type DispatchResult struct {
	Success     bool
	Subject     string
	Body        string
	Attachments []Attachment
	Failed      []FetchFailure
}

// Handler runs one command.
type Handler interface {
	Handle(ctx context.Context) *DispatchResult
}

type HandlerFunc func(ctx context.Context) *DispatchResult

func (f HandlerFunc) Handle(ctx context.Context) *DispatchResult { return f(ctx) }

// Registry maps command tokens to handlers. Tokens are case sensitive.
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds token to h, replacing any previous binding.
func (r *Registry) Register(token string, h Handler) {
	r.handlers[token] = h
}

// Dispatch runs the handler bound to token. Unknown tokens return false
// without side effects.
func (r *Registry) Dispatch(ctx context.Context, token string) (*DispatchResult, bool) {
	h, ok := r.handlers[token]
	if !ok {
		return nil, false
	}
	res := h.Handle(ctx)
	if res == nil {
		return nil, false
	}
	return res, true
}

// Tokens returns the registered tokens in sorted order.
func (r *Registry) Tokens() []string {
	tokens := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		tokens = append(tokens, t)
	}
	sort.Strings(tokens)
	return tokens
}

// Fetcher downloads url and stores the bytes at path.
type Fetcher interface {
	Fetch(ctx context.Context, url, path string) error
}

// Resource is a named remote file and where to keep it locally.
type Resource struct {
	Name string
	URL  string
	Path string
}

// FetchHandler downloads a fixed list of resources and replies with them.
// Resources are fetched one after another; a failed fetch is skipped and
// reported in the body.
type FetchHandler struct {
	Fetcher   Fetcher
	Resources []Resource
	Subject   string
	Body      string
	Logger    *slog.Logger
}

func (h *FetchHandler) Handle(ctx context.Context) *DispatchResult {
	logger := h.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	res := &DispatchResult{Subject: h.Subject}
	for _, r := range h.Resources {
		if err := h.Fetcher.Fetch(ctx, r.URL, r.Path); err != nil {
			logger.Warn("resource fetch failed", "resource", r.Name, "url", r.URL, "error", err)
			res.Failed = append(res.Failed, FetchFailure{Name: r.Name, Err: err})
			continue
		}
		logger.Debug("resource fetched", "resource", r.Name, "path", r.Path)
		res.Attachments = append(res.Attachments, Attachment{Path: r.Path})
	}
	res.Success = len(res.Failed) == 0
	res.Body = h.body(res.Failed)
	return res
}

func (h *FetchHandler) body(failed []FetchFailure) string {
	if len(failed) == 0 {
		return h.Body
	}
	var b strings.Builder
	b.WriteString(h.Body)
	b.WriteString("\n\nCould not retrieve:\n")
	for _, f := range failed {
		fmt.Fprintf(&b, "- %s: %v\n", f.Name, f.Err)
	}
	return b.String()
}
