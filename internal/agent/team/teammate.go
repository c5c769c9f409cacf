package team

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/neboloop/skiff/internal/agent/hooks"
	"github.com/neboloop/skiff/internal/logging"
)

const (
	DefaultPollInterval       = 2 * time.Second
	DefaultIdleAnnounceCycles = 15
	summaryChars              = 60
)

// Agent runs one user turn and returns the reply
type Agent interface {
	Run(ctx context.Context, message string) string
}

// Teammate drives an agent from the mailbox until the lead asks it to shut down
type Teammate struct {
	Name    string
	Lead    string
	Mailbox *Mailbox
	Agent   Agent
	Hooks   *hooks.Runner

	PollInterval       time.Duration
	IdleAnnounceCycles int
}

// Run processes the optional initial prompt, then polls the mailbox.
// It returns nil after an approved shutdown and ctx.Err() on cancellation.
func (t *Teammate) Run(ctx context.Context, initialPrompt string) error {
	if t.Mailbox == nil || t.Agent == nil {
		return errors.New("team: mailbox and agent required")
	}
	if t.Name == "" || t.Lead == "" {
		return errors.New("team: member and lead names required")
	}
	poll := t.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	announceEvery := t.IdleAnnounceCycles
	if announceEvery <= 0 {
		announceEvery = DefaultIdleAnnounceCycles
	}

	logging.Infof("[team:%s] %s online (lead: %s)", t.Mailbox.Team(), t.Name, t.Lead)

	if initialPrompt != "" {
		result := t.Agent.Run(ctx, initialPrompt)
		t.send(ctx, t.Lead, result, Summarize(result))
	}
	t.announceIdle(ctx)

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	emptyCycles := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		msgs, err := t.Mailbox.ReadUnread(ctx, t.Name)
		if err != nil {
			logging.Warnf("[team:%s] mailbox read failed: %v", t.Name, err)
			continue
		}
		if len(msgs) == 0 {
			emptyCycles++
			if emptyCycles >= announceEvery {
				t.announceIdle(ctx)
				emptyCycles = 0
			}
			continue
		}
		emptyCycles = 0

		for _, msg := range msgs {
			if n, ok := ParseNotice(msg.Text); ok {
				switch n.Type {
				case TypeShutdownRequest:
					t.send(ctx, msg.From, Notice{Type: TypeShutdownApproved, From: t.Name}.Encode(), "")
					logging.Infof("[team:%s] shutdown approved for %s", t.Name, msg.From)
					return nil
				case TypeIdleNotification, TypeShutdownApproved:
					continue
				}
			}

			result := t.Agent.Run(ctx, fmt.Sprintf("[Message from %s]: %s", msg.From, msg.Text))
			t.send(ctx, msg.From, result, Summarize(result))
			t.announceIdle(ctx)
		}
	}
}

func (t *Teammate) announceIdle(ctx context.Context) {
	n := Notice{Type: TypeIdleNotification, From: t.Name, IdleReason: "available"}
	t.send(ctx, t.Lead, n.Encode(), "")
}

func (t *Teammate) send(ctx context.Context, to, text, summary string) {
	data := t.Hooks.Run(ctx, hooks.PreTeamMessage, hooks.Data{"from": t.Name, "to": to, "text": text})
	if s := data.String("text"); s != "" {
		text = s
	}
	if err := t.Mailbox.Send(ctx, t.Name, to, text, summary); err != nil {
		logging.Warnf("[team:%s] send to %s failed: %v", t.Name, to, err)
		return
	}
	t.Hooks.Fire(ctx, hooks.PostTeamMessage, hooks.Data{"from": t.Name, "to": to, "summary": summary})
}

// Summarize returns the first 60 characters of text
func Summarize(text string) string {
	r := []rune(text)
	if len(r) <= summaryChars {
		return text
	}
	return string(r[:summaryChars])
}
