package bot

import (
	"context"
	"errors"
	"testing"

	"github.com/bassamadnan/mailcmd/gmail"
)

func TestReadLatest_EmptyInbox(t *testing.T) {
	tr := &fakeTransport{}

	msg, err := ReadLatest(context.Background(), tr)
	if err != nil {
		t.Fatalf("ReadLatest() error = %v", err)
	}
	if msg != nil {
		t.Errorf("ReadLatest() = %+v, want nil", msg)
	}
	if len(tr.trashed) != 0 {
		t.Errorf("trash calls = %v, want none", tr.trashed)
	}
	if len(tr.gets) != 0 {
		t.Errorf("get calls = %v, want none", tr.gets)
	}
}

func TestReadLatest_TrashesFirstListedOnly(t *testing.T) {
	tests := []struct {
		name    string
		from    string
		subject string
	}{
		{"valid command", allowed, "cmd: send_cams"},
		{"stranger", "spam@example.com", "cmd: send_cams"},
		{"no command", allowed, "lunch?"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &fakeTransport{
				ids: []string{"m1", "m2", "m3"},
				messages: map[string]*gmail.Message{
					"m1": message("m1", tt.from, tt.subject),
					"m2": message("m2", allowed, "cmd: send_cams"),
					"m3": message("m3", allowed, "cmd: send_cams"),
				},
			}

			msg, err := ReadLatest(context.Background(), tr)
			if err != nil {
				t.Fatalf("ReadLatest() error = %v", err)
			}
			if msg.ID != "m1" || msg.Sender != tt.from || msg.Subject != tt.subject {
				t.Errorf("ReadLatest() = %+v", msg)
			}
			if len(tr.gets) != 1 || tr.gets[0] != "m1" {
				t.Errorf("get calls = %v, want [m1]", tr.gets)
			}
			if len(tr.trashed) != 1 || tr.trashed[0] != "m1" {
				t.Errorf("trash calls = %v, want [m1]", tr.trashed)
			}
		})
	}
}

func TestReadLatest_MissingHeaders(t *testing.T) {
	tr := &fakeTransport{
		ids:      []string{"bare"},
		messages: map[string]*gmail.Message{"bare": {ID: "bare"}},
	}

	msg, err := ReadLatest(context.Background(), tr)
	if err != nil {
		t.Fatalf("ReadLatest() error = %v", err)
	}
	if msg.HasSender || msg.HasSubject || msg.Sender != "" || msg.Subject != "" {
		t.Errorf("ReadLatest() = %+v, want empty sender and subject", msg)
	}
	if len(tr.trashed) != 1 {
		t.Errorf("trash calls = %v, want one", tr.trashed)
	}
}

func TestReadLatest_FirstHeaderWins(t *testing.T) {
	m := &gmail.Message{ID: "m", Headers: []gmail.Header{
		{Name: "from", Value: "lowercase@example.com"},
		{Name: "From", Value: "first@example.com"},
		{Name: "From", Value: "second@example.com"},
		{Name: "Subject", Value: "cmd: x"},
	}}
	tr := &fakeTransport{ids: []string{"m"}, messages: map[string]*gmail.Message{"m": m}}

	msg, err := ReadLatest(context.Background(), tr)
	if err != nil {
		t.Fatalf("ReadLatest() error = %v", err)
	}
	if msg.Sender != "first@example.com" {
		t.Errorf("Sender = %q, want first@example.com", msg.Sender)
	}
}

func TestReadLatest_ListErrorPropagates(t *testing.T) {
	boom := errors.New("network down")
	tr := &fakeTransport{listErr: boom}

	if _, err := ReadLatest(context.Background(), tr); !errors.Is(err, boom) {
		t.Errorf("ReadLatest() error = %v, want %v", err, boom)
	}
}

func TestReadLatest_GetErrorSkipsTrash(t *testing.T) {
	tr := &fakeTransport{ids: []string{"gone"}}

	if _, err := ReadLatest(context.Background(), tr); err == nil {
		t.Fatal("ReadLatest() expected error")
	}
	if len(tr.trashed) != 0 {
		t.Errorf("trash calls = %v, want none", tr.trashed)
	}
}
