package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const (
	user               = "me"
	inboxLabel         = "INBOX"
	defaultInboxWindow = 10
)

// Client is the mail transport over the Gmail REST API.
type Client struct {
	srv    *gmailapi.Service
	window int64
	logger *slog.Logger
}

// NewClient builds a client on an already authorized HTTP client. window
// bounds how many inbox messages are considered when picking the latest.
func NewClient(ctx context.Context, httpClient *http.Client, window int64, logger *slog.Logger, opts ...option.ClientOption) (*Client, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	srv, err := gmailapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	if window <= 0 {
		window = defaultInboxWindow
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{srv: srv, window: window, logger: logger}, nil
}

type inboxRef struct {
	id   string
	date int64
}

// ListInbox returns the ids of up to window INBOX messages, newest first by
// internal date. Messages with equal dates keep the order Gmail listed them.
// Messages whose date cannot be read are left out.
func (c *Client) ListInbox(ctx context.Context) ([]string, error) {
	resp, err := c.srv.Users.Messages.List(user).
		LabelIds(inboxLabel).
		MaxResults(c.window).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("unable to list inbox: %w", err)
	}
	if len(resp.Messages) == 0 {
		return nil, nil
	}
	if len(resp.Messages) == 1 {
		return []string{resp.Messages[0].Id}, nil
	}

	refs := make([]inboxRef, 0, len(resp.Messages))
	var lastErr error
	for _, m := range resp.Messages {
		meta, err := c.srv.Users.Messages.Get(user, m.Id).Format("minimal").Context(ctx).Do()
		if err != nil {
			// Gone between list and get, or otherwise unreadable; it cannot be the latest.
			c.logger.Warn("skipping inbox message", "message_id", m.Id, "error", err)
			lastErr = err
			continue
		}
		refs = append(refs, inboxRef{id: m.Id, date: meta.InternalDate})
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("unable to retrieve any inbox message: %w", lastErr)
	}
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].date > refs[j].date })

	ids := make([]string, len(refs))
	for i, r := range refs {
		ids[i] = r.id
	}
	c.logger.Debug("inbox listed", "count", len(ids), "latest", ids[0])
	return ids, nil
}

func (c *Client) GetMessage(ctx context.Context, id string) (*Message, error) {
	msg, err := c.srv.Users.Messages.Get(user, id).
		Format("metadata").
		MetadataHeaders("From", "Subject", "Date").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve message %s: %w", id, err)
	}
	return convertMessage(msg), nil
}

func convertMessage(msg *gmailapi.Message) *Message {
	m := &Message{
		ID:           msg.Id,
		ThreadID:     msg.ThreadId,
		Snippet:      msg.Snippet,
		InternalDate: msg.InternalDate,
	}
	if msg.Payload == nil || msg.Payload.Headers == nil {
		return m
	}
	m.Headers = make([]Header, 0, len(msg.Payload.Headers))
	for _, h := range msg.Payload.Headers {
		if h == nil {
			continue
		}
		m.Headers = append(m.Headers, Header{Name: h.Name, Value: h.Value})
	}
	return m
}

// Trash moves the message out of the inbox.
func (c *Client) Trash(ctx context.Context, id string) error {
	if _, err := c.srv.Users.Messages.Trash(user, id).Context(ctx).Do(); err != nil {
		return fmt.Errorf("unable to trash message %s: %w", id, err)
	}
	c.logger.Debug("message trashed", "message_id", id)
	return nil
}

// Send submits a complete RFC 5322 message.
func (c *Client) Send(ctx context.Context, raw []byte) error {
	msg := &gmailapi.Message{Raw: base64.URLEncoding.EncodeToString(raw)}
	sent, err := c.srv.Users.Messages.Send(user, msg).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to send message: %w", err)
	}
	c.logger.Debug("message sent", "message_id", sent.Id)
	return nil
}
