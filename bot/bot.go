// Package bot runs one poll, parse, dispatch and reply cycle over a mailbox.
package bot

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
)

// Outcome describes how a run ended. Failed accompanies every non-nil
// error from RunOnce.
type Outcome int

const (
	Failed Outcome = iota
	EmptyInbox
	Rejected
	UnknownCommand
	Replied
	ReplyFailed
)

func (o Outcome) String() string {
	switch o {
	case Failed:
		return "failed"
	case EmptyInbox:
		return "empty inbox"
	case Rejected:
		return "rejected"
	case UnknownCommand:
		return "unknown command"
	case Replied:
		return "replied"
	case ReplyFailed:
		return "reply failed"
	default:
		return "unknown"
	}
}

type Options struct {
	Transport Transport
	Parser    *Parser
	Registry  *Registry
	Composer  *Composer
	// ReplyTo receives every reply. Usually the allowed sender.
	ReplyTo string
	Logger  *slog.Logger
}

type Bot struct {
	transport Transport
	parser    *Parser
	registry  *Registry
	composer  *Composer
	replyTo   string
	logger    *slog.Logger
}

func New(opts Options) (*Bot, error) {
	if opts.Transport == nil {
		return nil, errors.New("bot: transport is required")
	}
	if opts.Parser == nil || opts.Registry == nil || opts.Composer == nil {
		return nil, errors.New("bot: parser, registry and composer are required")
	}
	if opts.ReplyTo == "" {
		return nil, errors.New("bot: reply address is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Bot{
		transport: opts.Transport,
		parser:    opts.Parser,
		registry:  opts.Registry,
		composer:  opts.Composer,
		replyTo:   opts.ReplyTo,
		logger:    logger,
	}, nil
}

// RunOnce processes at most one inbox message. Transport errors while
// reading are returned; a failed reply is logged and reported only through
// the ReplyFailed outcome.
func (b *Bot) RunOnce(ctx context.Context) (Outcome, error) {
	logger := b.logger.With("run", uuid.NewString())

	msg, err := ReadLatest(ctx, b.transport)
	if err != nil {
		return Failed, err
	}
	if msg == nil {
		logger.Info("inbox empty")
		return EmptyInbox, nil
	}
	logger = logger.With("message_id", msg.ID)
	logger.Debug("message consumed", "from", msg.Sender, "subject", msg.Subject)

	parsed := b.parser.Classify(msg.Sender, msg.Subject)
	if !parsed.Matched() {
		logger.Info("message ignored", "reason", parsed.Reason.String())
		return Rejected, nil
	}
	logger = logger.With("token", parsed.Token)

	res, ok := b.registry.Dispatch(ctx, parsed.Token)
	if !ok {
		logger.Info("no handler for command")
		return UnknownCommand, nil
	}
	if !res.Success {
		logger.Warn("command completed with failures", "failed", len(res.Failed), "attachments", len(res.Attachments))
	}

	if err := b.composer.Respond(ctx, b.replyTo, res.Subject, res.Body, res.Attachments); err != nil {
		logger.Error("error sending reply", "error", err)
		return ReplyFailed, nil
	}
	return Replied, nil
}
