package bot

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"

	"shopbot/internal/permissions"

	"github.com/sirupsen/logrus"
)

// Call is one invocation of a command.
type Call struct {
	Msg  Message
	Name string
	Args string
}

type Command struct {
	Name      string
	Aliases   []string
	AdminOnly bool
	Usage     string
	Summary   string
	Run       func(ctx context.Context, call Call) (string, error)
}

type Authorizer interface {
	Allowed(ctx context.Context, guildID, command string, subject permissions.Subject) (bool, error)
}

// Router dispatches prefixed messages to registered commands.
type Router struct {
	prefix   string
	platform Platform
	policy   Authorizer
	symbol   string
	log      logrus.FieldLogger
	byName   map[string]*Command
	commands []*Command
}

func NewRouter(prefix string, platform Platform, policy Authorizer, symbol string, log logrus.FieldLogger) *Router {
	return &Router{
		prefix:   prefix,
		platform: platform,
		policy:   policy,
		symbol:   symbol,
		log:      log,
		byName:   make(map[string]*Command),
	}
}

func (r *Router) Register(cmds ...Command) {
	for i := range cmds {
		cmd := cmds[i]
		r.commands = append(r.commands, &cmd)
		r.byName[strings.ToLower(cmd.Name)] = &cmd
		for _, alias := range cmd.Aliases {
			r.byName[strings.ToLower(alias)] = &cmd
		}
	}
}

// Lookup finds a command by name or alias, ignoring case.
func (r *Router) Lookup(name string) (*Command, bool) {
	cmd, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return cmd, ok
}

// Names returns the canonical command names in alphabetical order.
func (r *Router) Names() []string {
	names := make([]string, 0, len(r.commands))
	for _, cmd := range r.commands {
		names = append(names, cmd.Name)
	}
	sort.Strings(names)
	return names
}

func (r *Router) Handle(ctx context.Context, msg Message) {
	if msg.AuthorBot || msg.GuildID == "" {
		return
	}
	content := strings.TrimSpace(msg.Content)
	if r.prefix == "" || !strings.HasPrefix(content, r.prefix) {
		return
	}
	name, args := splitFirst(strings.TrimPrefix(content, r.prefix))
	cmd, ok := r.Lookup(name)
	if !ok {
		return
	}
	log := r.log.WithFields(logrus.Fields{
		"guild_id":   msg.GuildID,
		"channel_id": msg.ChannelID,
		"user_id":    msg.AuthorID,
		"command":    cmd.Name,
	})
	defer func() {
		if rec := recover(); rec != nil {
			log.WithField("panic", rec).Errorf("command panicked\n%s", debug.Stack())
			r.reply(ctx, log, msg, "Something went wrong. Please try again later.")
		}
	}()

	if cmd.AdminOnly && !msg.IsAdmin {
		r.reply(ctx, log, msg, "This command is available to administrators only.")
		return
	}
	allowed, err := r.policy.Allowed(ctx, msg.GuildID, cmd.Name, permissions.Subject{
		UserID:  msg.AuthorID,
		RoleIDs: msg.MemberRoles,
		IsAdmin: msg.IsAdmin,
	})
	if err != nil {
		log.WithError(err).Error("permission check failed")
		r.reply(ctx, log, msg, "Something went wrong. Please try again later.")
		return
	}
	if !allowed {
		r.reply(ctx, log, msg, "You are not allowed to use this command.")
		return
	}

	text, err := cmd.Run(ctx, Call{Msg: msg, Name: cmd.Name, Args: args})
	if err != nil {
		text = r.describe(log, cmd, err)
	}
	if text != "" {
		r.reply(ctx, log, msg, text)
	}
}

func (r *Router) describe(log logrus.FieldLogger, cmd *Command, err error) string {
	if errors.Is(err, errUsage) {
		return fmt.Sprintf("Usage: `%s%s`", r.prefix, cmd.Usage)
	}
	if errors.Is(err, context.Canceled) {
		log.WithError(err).Debug("command cancelled")
		return ""
	}
	text, known := renderError(err, nil, r.symbol)
	if known {
		log.WithError(err).Debug("command rejected")
	} else {
		log.WithError(err).Error("command failed")
	}
	return text
}

func (r *Router) reply(ctx context.Context, log logrus.FieldLogger, msg Message, text string) {
	if _, err := r.platform.Send(ctx, msg.ChannelID, text); err != nil {
		log.WithError(err).Warn("failed to send reply")
	}
}
