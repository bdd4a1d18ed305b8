package resolver

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"shopbot/internal/models"

	"github.com/sirupsen/logrus"
)

const (
	DefaultTimeout  = 60 * time.Second
	DefaultAttempts = 3
	MaxShown        = 20
)

var (
	ErrNotFound        = errors.New("no matching item")
	ErrCancelled       = errors.New("selection cancelled")
	ErrTimedOut        = errors.New("selection timed out")
	ErrTooManyAttempts = errors.New("too many invalid selections")

	// ErrNoReply is returned by Conversation.Await when the timeout elapses
	// without a reply.
	ErrNoReply = errors.New("no reply")
)

var cancelTokens = map[string]struct{}{
	"cancel": {},
	"stop":   {},
	"no":     {},
	"отмена": {},
	"стоп":   {},
	"нет":    {},
}

type Reply struct {
	MessageID string
	Content   string
}

// Conversation is the chat exchange with the member who issued the command.
type Conversation interface {
	// Present sends the numbered choices and returns the prompt message id.
	// overflow is the number of matches not shown.
	Present(ctx context.Context, query string, choices []Candidate, overflow int) (string, error)
	// Reprompt asks again after an invalid reply.
	Reprompt(ctx context.Context, max, attemptsLeft int) error
	// Await returns the member's next message in the channel, or ErrNoReply.
	Await(ctx context.Context, timeout time.Duration) (Reply, error)
	Delete(ctx context.Context, messageID string) error
}

type State int

const (
	StatePresent State = iota
	StateAwait
	StateEvaluate
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StatePresent:
		return "present"
	case StateAwait:
		return "await"
	case StateEvaluate:
		return "evaluate"
	case StateTerminal:
		return "terminal"
	}
	return "unknown"
}

type VerdictKind int

const (
	VerdictInvalid VerdictKind = iota
	VerdictChoice
	VerdictCancel
)

type Verdict struct {
	Kind  VerdictKind
	Index int // zero-based, set for VerdictChoice
}

// Evaluate classifies a reply against a list of max numbered choices.
func Evaluate(content string, max int) Verdict {
	text := strings.ToLower(strings.TrimSpace(content))
	if _, ok := cancelTokens[text]; ok {
		return Verdict{Kind: VerdictCancel}
	}
	n, err := strconv.Atoi(text)
	if err != nil || strings.HasPrefix(text, "+") || strings.HasPrefix(text, "-") {
		return Verdict{Kind: VerdictInvalid}
	}
	if n < 1 || n > max {
		return Verdict{Kind: VerdictInvalid}
	}
	return Verdict{Kind: VerdictChoice, Index: n - 1}
}

type Disambiguator struct {
	Timeout  time.Duration
	Attempts int
	log      logrus.FieldLogger
}

func NewDisambiguator(timeout time.Duration, attempts int, log logrus.FieldLogger) *Disambiguator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	return &Disambiguator{Timeout: timeout, Attempts: attempts, log: log}
}

// Choose narrows candidates to one item. A single candidate resolves without
// prompting.
func (d *Disambiguator) Choose(ctx context.Context, conv Conversation, query string, candidates []Candidate) (models.Item, error) {
	switch len(candidates) {
	case 0:
		return models.Item{}, ErrNotFound
	case 1:
		return candidates[0].Item, nil
	}

	shown := candidates
	if len(shown) > MaxShown {
		shown = shown[:MaxShown]
	}
	overflow := len(candidates) - len(shown)

	var (
		state    = StatePresent
		promptID string
		reply    Reply
		left     = d.Attempts
		result   models.Item
		outcome  error
	)
	defer func() {
		if promptID != "" {
			d.bestEffort(conv.Delete(context.WithoutCancel(ctx), promptID), "delete selection prompt")
		}
	}()

	for state != StateTerminal {
		switch state {
		case StatePresent:
			id, err := conv.Present(ctx, query, shown, overflow)
			if err != nil {
				return models.Item{}, err
			}
			promptID = id
			state = StateAwait

		case StateAwait:
			r, err := conv.Await(ctx, d.Timeout)
			switch {
			case errors.Is(err, ErrNoReply):
				outcome = ErrTimedOut
				state = StateTerminal
				continue
			case err != nil:
				return models.Item{}, err
			}
			reply = r
			d.bestEffort(conv.Delete(ctx, reply.MessageID), "delete selection reply")
			state = StateEvaluate

		case StateEvaluate:
			left--
			verdict := Evaluate(reply.Content, len(shown))
			switch {
			case verdict.Kind == VerdictCancel:
				outcome = ErrCancelled
				state = StateTerminal
			case verdict.Kind == VerdictChoice:
				result = shown[verdict.Index].Item
				state = StateTerminal
			case left <= 0:
				outcome = ErrTooManyAttempts
				state = StateTerminal
			default:
				if err := conv.Reprompt(ctx, len(shown), left); err != nil {
					d.bestEffort(err, "send selection reprompt")
				}
				state = StateAwait
			}
		}
	}
	if outcome != nil {
		return models.Item{}, outcome
	}
	return result, nil
}

func (d *Disambiguator) bestEffort(err error, action string) {
	if err == nil || d.log == nil {
		return
	}
	d.log.WithError(err).Warn(action)
}
