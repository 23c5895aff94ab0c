package notify

import (
	"context"
	"testing"
)

type recordingNotifier struct {
	messages []Message
}

func (r *recordingNotifier) Notify(_ context.Context, msg Message) error {
	r.messages = append(r.messages, msg)
	return nil
}

func TestRecordingNotifierCapturesMessage(t *testing.T) {
	var r recordingNotifier
	msg := Message{
		HostName: "mirror.example.org",
		Reason:   "Host marked not up2date: rsync connection refused",
		LogPath:  "/var/log/crawler/42.log",
		Exception: &ExceptionInfo{
			Kind:  "TimeoutException",
			Value: "deadline exceeded",
			Stack: "crawler: worker 3 timed out",
		},
	}
	if err := r.Notify(context.Background(), msg); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(r.messages) != 1 || r.messages[0].HostName != "mirror.example.org" {
		t.Fatalf("unexpected messages: %+v", r.messages)
	}
}

func TestNopNotifierDiscards(t *testing.T) {
	var n NopNotifier
	if err := n.Notify(context.Background(), Message{HostName: "x"}); err != nil {
		t.Fatalf("NopNotifier.Notify returned error: %v", err)
	}
}

func TestNewSMTPNotifierSkipsAuthWithoutCredentials(t *testing.T) {
	n := NewSMTPNotifier(SMTPConfig{Host: "localhost", Port: 25, From: "crawler@example.org", To: "admin@example.org"})
	if n.auth != nil {
		t.Error("expected no auth when username/password are empty")
	}
}

func TestNewSMTPNotifierSetsAuthWithCredentials(t *testing.T) {
	n := NewSMTPNotifier(SMTPConfig{
		Host: "localhost", Port: 25, Username: "u", Password: "p",
		From: "crawler@example.org", To: "admin@example.org",
	})
	if n.auth == nil {
		t.Error("expected auth to be set when username/password are provided")
	}
}
