package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"shopbot/internal/resolver"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"
)

type waiter struct {
	match func(Message) bool
	ch    chan Message
}

// DiscordPlatform implements Platform and services.RoleManager on a
// discordgo session. Messages claimed by a pending WaitFor never reach the
// command handler.
type DiscordPlatform struct {
	session *discordgo.Session
	log     logrus.FieldLogger

	mu      sync.Mutex
	nextID  uint64
	waiters map[uint64]waiter
}

func NewDiscordPlatform(token string, log logrus.FieldLogger) (*DiscordPlatform, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentGuilds | discordgo.IntentGuildMessages | discordgo.IntentMessageContent
	return &DiscordPlatform{
		session: session,
		log:     log,
		waiters: make(map[uint64]waiter),
	}, nil
}

// Open connects to the gateway and feeds every unclaimed message to handle
// on its own goroutine.
func (d *DiscordPlatform) Open(ctx context.Context, handle func(context.Context, Message)) error {
	d.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil {
			return
		}
		msg := d.toMessage(m)
		if d.deliver(msg) {
			return
		}
		go handle(ctx, msg)
	})
	return d.session.Open()
}

func (d *DiscordPlatform) Close() error {
	return d.session.Close()
}

func (d *DiscordPlatform) Send(ctx context.Context, channelID, content string) (string, error) {
	sent, err := d.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return sent.ID, nil
}

func (d *DiscordPlatform) Delete(ctx context.Context, channelID, messageID string) error {
	return d.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx))
}

func (d *DiscordPlatform) WaitFor(ctx context.Context, match func(Message) bool, timeout time.Duration) (Message, error) {
	ch := make(chan Message, 1)
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.waiters[id] = waiter{match: match, ch: ch}
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.waiters, id)
		d.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg := <-ch:
		return msg, nil
	case <-timer.C:
		return Message{}, resolver.ErrNoReply
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (d *DiscordPlatform) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	return d.session.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx))
}

func (d *DiscordPlatform) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	return d.session.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx))
}

// deliver hands msg to the first matching waiter.
func (d *DiscordPlatform) deliver(msg Message) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, w := range d.waiters {
		if !w.match(msg) {
			continue
		}
		delete(d.waiters, id)
		w.ch <- msg
		return true
	}
	return false
}

func (d *DiscordPlatform) toMessage(m *discordgo.MessageCreate) Message {
	msg := Message{
		ID:           m.ID,
		GuildID:      m.GuildID,
		ChannelID:    m.ChannelID,
		AuthorID:     m.Author.ID,
		AuthorBot:    m.Author.Bot,
		Content:      m.Content,
		RoleMentions: m.MentionRoles,
	}
	if m.Member != nil {
		msg.MemberRoles = m.Member.Roles
	}
	for _, u := range m.Mentions {
		msg.UserMentions = append(msg.UserMentions, Mention{ID: u.ID, Bot: u.Bot})
	}
	if m.GuildID != "" {
		msg.IsAdmin = d.isAdmin(m.GuildID, msg.AuthorID, msg.MemberRoles)
	}
	return msg
}

func (d *DiscordPlatform) isAdmin(guildID, userID string, roles []string) bool {
	guild, err := d.session.State.Guild(guildID)
	if err != nil {
		d.log.WithError(err).WithField("guild_id", guildID).Warn("guild missing from state")
		return false
	}
	if guild.OwnerID == userID {
		return true
	}
	held := make(map[string]struct{}, len(roles))
	for _, id := range roles {
		held[id] = struct{}{}
	}
	for _, role := range guild.Roles {
		if _, ok := held[role.ID]; ok && role.Permissions&discordgo.PermissionAdministrator != 0 {
			return true
		}
	}
	return false
}
