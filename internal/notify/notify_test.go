package notify

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/schuanhe/crawl-orch/internal/domain"
)

type recordingNotifier struct {
	sent []Notification
	err  error
}

func (r *recordingNotifier) Send(n Notification) error {
	r.sent = append(r.sent, n)
	return r.err
}

func TestRunFinished(t *testing.T) {
	cases := []struct {
		status    domain.RunStatus
		wantType  NotificationType
		wantTitle string
	}{
		{domain.StatusCompleted, NotifySuccess, "Crawler News completed"},
		{domain.StatusTimeout, NotifyWarning, "Crawler News timed out"},
		{domain.StatusError, NotifyError, "Crawler News failed"},
	}
	for _, tc := range cases {
		n := RunFinished("News", "run-1", tc.status)
		if n.Type != tc.wantType {
			t.Errorf("%s: Type = %d, want %d", tc.status, n.Type, tc.wantType)
		}
		if n.Title != tc.wantTitle {
			t.Errorf("%s: Title = %q, want %q", tc.status, n.Title, tc.wantTitle)
		}
		if n.RunID != "run-1" {
			t.Errorf("%s: RunID = %q", tc.status, n.RunID)
		}
	}
}

func TestMultiNotifier(t *testing.T) {
	a := &recordingNotifier{}
	b := &recordingNotifier{err: errors.New("boom")}
	c := &recordingNotifier{}

	m := NewMultiNotifier(a, b, c)
	err := m.Send(Notification{Title: "t"})
	if err == nil {
		t.Error("expected error from failing notifier")
	}

	for i, r := range []*recordingNotifier{a, b, c} {
		if len(r.sent) != 1 {
			t.Errorf("notifier %d received %d notifications, want 1", i, len(r.sent))
		}
	}
}

func TestSlackNotifier(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		body = string(buf)
	}))
	defer srv.Close()

	s := NewSlackNotifier(srv.URL)
	n := RunFinished("News", "run-9", domain.StatusTimeout)
	if err := s.Send(n); err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(body, "timed out") {
		t.Errorf("payload missing title: %q", body)
	}
	if !strings.Contains(body, `"warning"`) {
		t.Errorf("payload missing color: %q", body)
	}
	if !strings.Contains(body, "run-9") {
		t.Errorf("payload missing run reference: %q", body)
	}
}

func TestSlackNotifier_DisabledWithoutURL(t *testing.T) {
	s := NewSlackNotifier("")
	if err := s.Send(Notification{Title: "t"}); err != nil {
		t.Errorf("Send with empty webhook = %v, want nil", err)
	}
}

func TestSlackNotifier_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewSlackNotifier(srv.URL)
	if err := s.Send(Notification{Title: "t"}); err == nil {
		t.Error("expected error for non-200 response")
	}
}
