package bot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
)

const defaultContentType = "application/octet-stream"

// Extensions that name a compression wrapper rather than the content itself.
var encodingExtensions = map[string]bool{
	".gz": true, ".bz2": true, ".xz": true, ".z": true, ".br": true, ".zst": true,
}

// ContentTypeFor guesses the media type of path from its extension.
// Unknown and compressed files are sent as application/octet-stream.
func ContentTypeFor(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" || encodingExtensions[ext] {
		return defaultContentType
	}
	t := mime.TypeByExtension(ext)
	if t == "" {
		return defaultContentType
	}
	mediaType, _, err := mime.ParseMediaType(t)
	if err != nil || !strings.Contains(mediaType, "/") {
		return defaultContentType
	}
	return mediaType
}

// Composer assembles reply messages and hands them to a Sender.
type Composer struct {
	sender Sender
	from   string
	logger *slog.Logger
	now    func() time.Time
}

func NewComposer(sender Sender, from string, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Composer{sender: sender, from: from, logger: logger, now: time.Now}
}

// Respond builds the reply and sends it.
func (c *Composer) Respond(ctx context.Context, to, subject, body string, atts []Attachment) error {
	raw, err := c.BuildMessage(to, subject, body, atts)
	if err != nil {
		return err
	}
	if err := c.sender.Send(ctx, raw); err != nil {
		return fmt.Errorf("sending reply: %w", err)
	}
	c.logger.Info("reply sent", "to", to, "attachments", len(atts), "bytes", len(raw))
	return nil
}

// BuildMessage renders a multipart/mixed message with one text part and one
// attachment part per file, in the given order.
func (c *Composer) BuildMessage(to, subject, body string, atts []Attachment) ([]byte, error) {
	var h mail.Header
	h.SetDate(c.now())
	setAddress(&h, "To", to)
	if c.from != "" {
		setAddress(&h, "From", c.from)
	}
	h.SetSubject(subject)

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("creating message writer: %w", err)
	}

	tw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("creating text part: %w", err)
	}
	var th mail.InlineHeader
	th.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	w, err := tw.CreatePart(th)
	if err != nil {
		return nil, fmt.Errorf("creating text part: %w", err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		return nil, fmt.Errorf("writing body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}

	for _, a := range atts {
		if err := writeAttachment(mw, a); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing message: %w", err)
	}
	return buf.Bytes(), nil
}

func writeAttachment(mw *mail.Writer, a Attachment) error {
	data, err := os.ReadFile(a.Path)
	if err != nil {
		return fmt.Errorf("reading attachment: %w", err)
	}
	ct := a.ContentType
	if ct == "" {
		ct = ContentTypeFor(a.Path)
	}

	var ah mail.AttachmentHeader
	ah.SetContentType(ct, nil)
	ah.SetFilename(filepath.Base(a.Path))
	w, err := mw.CreateAttachment(ah)
	if err != nil {
		return fmt.Errorf("creating attachment %s: %w", a.Path, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing attachment %s: %w", a.Path, err)
	}
	return w.Close()
}

// setAddress prefers a parsed address list and falls back to the raw value
// for strings net/mail does not accept.
func setAddress(h *mail.Header, key, value string) {
	value = strings.NewReplacer("\r", "", "\n", "").Replace(value)
	if addrs, err := mail.ParseAddressList(value); err == nil && len(addrs) > 0 {
		h.SetAddressList(key, addrs)
		return
	}
	h.Set(key, value)
}
