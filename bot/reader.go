package bot

import (
	"context"
	"fmt"

	"github.com/bassamadnan/mailcmd/gmail"
)

// Transport is the mail service capability the bot runs against.
type Transport interface {
	ListInbox(ctx context.Context) ([]string, error)
	GetMessage(ctx context.Context, id string) (*gmail.Message, error)
	Trash(ctx context.Context, id string) error
	Sender
}

// Sender submits an already assembled RFC 5322 message.
type Sender interface {
	Send(ctx context.Context, raw []byte) error
}

// InboxMessage is the latest inbox item as seen by the parser.
type InboxMessage struct {
	ID         string
	Sender     string
	Subject    string
	HasSender  bool
	HasSubject bool
	Raw        *gmail.Message
}

// ReadLatest returns the first message the transport lists and trashes it.
// An empty inbox yields nil with no error. The trash happens as soon as the
// message has been read, before anything looks at its contents.
func ReadLatest(ctx context.Context, t Transport) (*InboxMessage, error) {
	ids, err := t.ListInbox(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing inbox: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	id := ids[0]
	msg, err := t.GetMessage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting message %s: %w", id, err)
	}

	in := &InboxMessage{ID: id, Raw: msg}
	in.Sender, in.HasSender = msg.Header("From")
	in.Subject, in.HasSubject = msg.Header("Subject")

	if err := t.Trash(ctx, id); err != nil {
		return nil, fmt.Errorf("trashing message %s: %w", id, err)
	}
	return in, nil
}
