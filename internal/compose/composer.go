// Package compose produces outreach message content per channel and attempt.
// A deterministic template engine is always available; when an LLM endpoint
// is configured the templates become the fallback path.
package compose

import (
	"context"
	"fmt"
	"strings"

	"outreach_backend/internal/engagement"
	"outreach_backend/internal/policy"
	"outreach_backend/platform/logger"
)

// Completer generates free-form text from a prompt. *LLMClient implements it;
// tests substitute their own.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Composer implements the engagement composer port.
type Composer struct {
	llm Completer // nil means template-only
	log *logger.Logger
}

func New(llm Completer, log *logger.Logger) *Composer {
	return &Composer{llm: llm, log: log}
}

func (c *Composer) Compose(ctx context.Context, req engagement.ComposeRequest) (engagement.Message, error) {
	if req.Contact.Name == "" {
		return engagement.Message{}, fmt.Errorf("compose: contact name is required")
	}

	if c.llm != nil {
		msg, err := c.composeWithLLM(ctx, req)
		if err == nil {
			return msg, nil
		}
		c.log.Warn("llm compose failed, falling back to template",
			"channel", string(req.Channel), "error", err.Error())
	}

	return c.composeFromTemplate(req), nil
}

func (c *Composer) composeFromTemplate(req engagement.ComposeRequest) engagement.Message {
	first := firstName(req.Contact.Name)

	var b strings.Builder
	switch req.Channel {
	case policy.ChannelSMS:
		fmt.Fprintf(&b, "Hi %s, ", first)
		if req.ColleagueRef != nil {
			fmt.Fprintf(&b, "we reached out to %s at %s earlier and wanted to check with you too. ", firstName(req.ColleagueRef.Name), req.Organization)
		} else if req.Attempt > 1 {
			b.WriteString("following up on my earlier note. ")
		}
		b.WriteString("Would you have 15 minutes this week to talk about streamlining your intake volume? Reply here and I'll set it up.")
		return engagement.Message{Body: b.String()}

	case policy.ChannelCall:
		fmt.Fprintf(&b, "Hello, this is a message for %s. ", req.Contact.Name)
		if req.ColleagueRef != nil {
			fmt.Fprintf(&b, "We previously tried to reach your colleague %s at %s. ", req.ColleagueRef.Name, req.Organization)
		}
		fmt.Fprintf(&b, "We help teams like %s handle their inbound volume with less manual work. ", req.Organization)
		b.WriteString("Please call us back at your convenience, or reply to the email we sent earlier.")
		return engagement.Message{Body: b.String()}

	default:
		fmt.Fprintf(&b, "Hi %s,\n\n", first)
		if req.ColleagueRef != nil {
			fmt.Fprintf(&b, "I reached out to your colleague %s recently and didn't manage to connect, so I wanted to try you directly.\n\n", req.ColleagueRef.Name)
		} else if req.Attempt > 1 {
			b.WriteString("I wanted to follow up on my earlier note in case it got buried.\n\n")
		}
		fmt.Fprintf(&b, "Teams at organizations like %s typically spend hours a week triaging inbound requests by hand. We automate that end to end, and I'd love to show you what it would look like for you.\n\n", req.Organization)
		b.WriteString("Would a short call this week work?\n\nBest regards")

		subject := fmt.Sprintf("Streamlining intake at %s", req.Organization)
		if req.Attempt > 1 {
			subject = "Re: " + subject
		}
		return engagement.Message{Subject: subject, Body: b.String()}
	}
}

func (c *Composer) composeWithLLM(ctx context.Context, req engagement.ComposeRequest) (engagement.Message, error) {
	system := "You write short, direct B2B outreach messages. " +
		"No pleasantries beyond one sentence, no pressure tactics, plain text only."

	var user strings.Builder
	fmt.Fprintf(&user, "Write a %s outreach message (attempt %d) to %s (%s) at %s.\n",
		req.Channel, req.Attempt, req.Contact.Name, req.Contact.Role, req.Organization)
	if req.ColleagueRef != nil {
		fmt.Fprintf(&user, "Mention that we previously tried to reach their colleague %s without success.\n", req.ColleagueRef.Name)
	}
	switch req.Channel {
	case policy.ChannelSMS:
		user.WriteString("Keep it under 300 characters. Output only the message body.")
	case policy.ChannelCall:
		user.WriteString("Write it as a voicemail script of at most 60 words. Output only the script.")
	default:
		user.WriteString("Output the subject on the first line, then a blank line, then the body.")
	}

	text, err := c.llm.Complete(ctx, system, user.String())
	if err != nil {
		return engagement.Message{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return engagement.Message{}, fmt.Errorf("llm returned empty content")
	}

	if req.Channel != policy.ChannelEmail {
		return engagement.Message{Body: text}, nil
	}

	subject, body, found := strings.Cut(text, "\n")
	if !found || strings.TrimSpace(body) == "" {
		return engagement.Message{}, fmt.Errorf("llm email output missing subject or body")
	}
	return engagement.Message{
		Subject: strings.TrimSpace(subject),
		Body:    strings.TrimSpace(body),
	}, nil
}

func firstName(full string) string {
	name, _, _ := strings.Cut(strings.TrimSpace(full), " ")
	return name
}
