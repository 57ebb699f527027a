package compose

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"outreach_backend/internal/engagement"
	"outreach_backend/internal/policy"
	"outreach_backend/platform/logger"
)

func composeReq(channel policy.Channel, attempt int) engagement.ComposeRequest {
	return engagement.ComposeRequest{
		Contact:      engagement.Contact{ID: uuid.New(), Name: "Dana Reyes", Role: "VP Operations"},
		Organization: "Acme",
		Tier:         policy.TierHot,
		Channel:      channel,
		Attempt:      attempt,
	}
}

func TestTemplateEmailHasSubjectAndBody(t *testing.T) {
	c := New(nil, logger.New("development"))

	msg, err := c.Compose(context.Background(), composeReq(policy.ChannelEmail, 1))
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if msg.Subject == "" {
		t.Fatal("expected an email subject")
	}
	if !strings.Contains(msg.Body, "Dana") {
		t.Fatalf("expected body to address the contact, got %q", msg.Body)
	}
	if !strings.Contains(msg.Body, "Acme") {
		t.Fatalf("expected body to mention the organization, got %q", msg.Body)
	}
}

func TestTemplateFollowUpMarksSubject(t *testing.T) {
	c := New(nil, logger.New("development"))

	msg, err := c.Compose(context.Background(), composeReq(policy.ChannelEmail, 2))
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if !strings.HasPrefix(msg.Subject, "Re: ") {
		t.Fatalf("expected follow-up subject, got %q", msg.Subject)
	}
}

func TestTemplateSMSIsShortAndSubjectless(t *testing.T) {
	c := New(nil, logger.New("development"))

	msg, err := c.Compose(context.Background(), composeReq(policy.ChannelSMS, 3))
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if msg.Subject != "" {
		t.Fatalf("sms must not carry a subject, got %q", msg.Subject)
	}
	if len(msg.Body) > 320 {
		t.Fatalf("sms body too long: %d chars", len(msg.Body))
	}
}

func TestColleagueReferenceAppearsInBody(t *testing.T) {
	c := New(nil, logger.New("development"))

	req := composeReq(policy.ChannelEmail, 1)
	req.ColleagueRef = &engagement.Contact{ID: uuid.New(), Name: "Sam Ortiz"}

	msg, err := c.Compose(context.Background(), req)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if !strings.Contains(msg.Body, "Sam Ortiz") {
		t.Fatalf("expected colleague reference in body, got %q", msg.Body)
	}
}

type failingCompleter struct{}

func (failingCompleter) Complete(context.Context, string, string) (string, error) {
	return "", fmt.Errorf("model overloaded")
}

func TestLLMFailureFallsBackToTemplate(t *testing.T) {
	c := New(failingCompleter{}, logger.New("development"))

	msg, err := c.Compose(context.Background(), composeReq(policy.ChannelEmail, 1))
	if err != nil {
		t.Fatalf("expected template fallback, got %v", err)
	}
	if msg.Subject == "" || msg.Body == "" {
		t.Fatal("expected a complete template message")
	}
}

type llmTestConfig struct{ url string }

func (c llmTestConfig) GetComposerAPIURL() string { return c.url }
func (c llmTestConfig) GetComposerAPIKey() string { return "key" }
func (c llmTestConfig) GetComposerModel() string  { return "test-model" }
func (c llmTestConfig) IsComposerEnabled() bool   { return c.url != "" }

func TestLLMClientParsesChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("unexpected auth header %q", got)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"Subject line\n\nBody text"}}]}`)
	}))
	defer srv.Close()

	client := NewLLMClient(llmTestConfig{url: srv.URL})
	if client == nil {
		t.Fatal("expected a configured client")
	}

	text, err := client.Complete(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !strings.Contains(text, "Subject line") {
		t.Fatalf("unexpected completion %q", text)
	}
}

func TestLLMClientDisabledWhenUnconfigured(t *testing.T) {
	if client := NewLLMClient(llmTestConfig{}); client != nil {
		t.Fatal("expected nil client without an endpoint")
	}
}

func TestLLMEmailOutputSplitsSubject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"Quick intro\n\nHi Dana, short note about Acme."}}]}`)
	}))
	defer srv.Close()

	c := New(NewLLMClient(llmTestConfig{url: srv.URL}), logger.New("development"))
	msg, err := c.Compose(context.Background(), composeReq(policy.ChannelEmail, 1))
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if msg.Subject != "Quick intro" {
		t.Fatalf("expected subject from first line, got %q", msg.Subject)
	}
	if !strings.Contains(msg.Body, "Hi Dana") {
		t.Fatalf("unexpected body %q", msg.Body)
	}
}
