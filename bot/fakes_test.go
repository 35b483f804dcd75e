package bot

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/bassamadnan/mailcmd/gmail"
)

type fakeTransport struct {
	ids      []string
	messages map[string]*gmail.Message
	listErr  error
	sendErr  error

	gets    []string
	trashed []string
	sent    [][]byte
}

func (f *fakeTransport) ListInbox(ctx context.Context) ([]string, error) {
	return f.ids, f.listErr
}

func (f *fakeTransport) GetMessage(ctx context.Context, id string) (*gmail.Message, error) {
	f.gets = append(f.gets, id)
	msg, ok := f.messages[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return msg, nil
}

func (f *fakeTransport) Trash(ctx context.Context, id string) error {
	f.trashed = append(f.trashed, id)
	return nil
}

func (f *fakeTransport) Send(ctx context.Context, raw []byte) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, raw)
	return nil
}

func message(id, from, subject string) *gmail.Message {
	return &gmail.Message{
		ID: id,
		Headers: []gmail.Header{
			{Name: "From", Value: from},
			{Name: "Subject", Value: subject},
		},
	}
}

// fakeFetcher writes the URL itself as file content unless the URL is
// listed in fail.
type fakeFetcher struct {
	fail    map[string]error
	fetched []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url, path string) error {
	f.fetched = append(f.fetched, url)
	if err, ok := f.fail[url]; ok {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("data:"+url), 0o644)
}
