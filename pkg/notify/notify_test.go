package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestTelegramSender_Send(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "1234").WithBaseURL(srv.URL)
	if err := s.Send(context.Background(), "SOLUSDT BAN due margin unavailable"); err != nil {
		t.Fatal(err)
	}
	if got["chat_id"] != "1234" || got["text"] != "SOLUSDT BAN due margin unavailable" {
		t.Errorf("payload = %v", got)
	}
}

func TestTelegramSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"ok":false,"description":"Unauthorized"}`)
	}))
	defer srv.Close()

	err := NewTelegramSender("bad", "1").WithBaseURL(srv.URL).Send(context.Background(), "hi")
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("err = %v, want status 401", err)
	}
}

type failingSender struct{ calls int }

func (f *failingSender) Send(context.Context, string) error {
	f.calls++
	return errors.New("offline")
}

func (f *failingSender) Name() string { return "failing" }

func TestNotifier_FansOut(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	failing := &failingSender{}
	n := NewNotifier(logger, failing, NewLogSender(logger))

	err := n.Send(context.Background(), "HALT on SOLUSDT")
	if err == nil || !strings.Contains(err.Error(), "failing: offline") {
		t.Errorf("err = %v", err)
	}
	if failing.calls != 1 {
		t.Errorf("failing sender calls = %d", failing.calls)
	}
	if !strings.Contains(buf.String(), "HALT on SOLUSDT") {
		t.Errorf("log sender did not record the message: %s", buf.String())
	}
}

func TestNotifier_NoSenders(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	if err := NewNotifier(logger).Send(context.Background(), "x"); err != nil {
		t.Errorf("err = %v", err)
	}
}
