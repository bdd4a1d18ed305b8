package bot

import (
	"context"
	"time"

	"shopbot/internal/resolver"
)

// Mention is a user mentioned in a message.
type Mention struct {
	ID  string
	Bot bool
}

// Message is an incoming chat message with the author's guild context.
type Message struct {
	ID           string
	GuildID      string
	ChannelID    string
	AuthorID     string
	AuthorBot    bool
	Content      string
	MemberRoles  []string
	IsAdmin      bool
	UserMentions []Mention
	RoleMentions []string
}

// Platform is the chat service the bot talks through.
type Platform interface {
	Send(ctx context.Context, channelID, content string) (string, error)
	Delete(ctx context.Context, channelID, messageID string) error
	// WaitFor returns the next message accepted by match. It returns
	// resolver.ErrNoReply when timeout elapses first.
	WaitFor(ctx context.Context, match func(Message) bool, timeout time.Duration) (Message, error)
}

// conversation binds the disambiguation dialogue to the channel and author
// of the command that started it.
type conversation struct {
	platform Platform
	origin   Message
	symbol   string
}

func newConversation(platform Platform, origin Message, symbol string) *conversation {
	return &conversation{platform: platform, origin: origin, symbol: symbol}
}

func (c *conversation) Present(ctx context.Context, query string, choices []resolver.Candidate, overflow int) (string, error) {
	return c.platform.Send(ctx, c.origin.ChannelID, renderChoices(query, choices, overflow, c.symbol))
}

func (c *conversation) Reprompt(ctx context.Context, max, attemptsLeft int) error {
	_, err := c.platform.Send(ctx, c.origin.ChannelID, renderReprompt(max, attemptsLeft))
	return err
}

func (c *conversation) Await(ctx context.Context, timeout time.Duration) (resolver.Reply, error) {
	msg, err := c.platform.WaitFor(ctx, func(m Message) bool {
		return m.ChannelID == c.origin.ChannelID && m.AuthorID == c.origin.AuthorID
	}, timeout)
	if err != nil {
		return resolver.Reply{}, err
	}
	return resolver.Reply{MessageID: msg.ID, Content: msg.Content}, nil
}

func (c *conversation) Delete(ctx context.Context, messageID string) error {
	return c.platform.Delete(ctx, c.origin.ChannelID, messageID)
}
