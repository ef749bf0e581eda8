package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/IceQ1337/SteamBanChecker/internal/messages"
	"github.com/IceQ1337/SteamBanChecker/internal/notify"
	"github.com/IceQ1337/SteamBanChecker/internal/registry"
)

// Messenger sends direct messages to Discord users
type Messenger interface {
	Send(ctx context.Context, recipient string, msg notify.Message) error
	SendComponents(ctx context.Context, recipient, content string, components []discordgo.MessageComponent) error
}

// Checker starts a ban check outside the regular schedule
type Checker interface {
	Trigger() bool
}

// Bot represents the Discord bot instance
type Bot struct {
	session   *discordgo.Session
	registry  *registry.Manager
	catalog   *messages.Catalog
	messenger Messenger
	checker   Checker
}

// New creates a new Bot on a session that is not yet open
func New(session *discordgo.Session, reg *registry.Manager, catalog *messages.Catalog, messenger Messenger, checker Checker) *Bot {
	// Commands arrive as interactions, DMs only need the direct message intent
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsDirectMessages

	b := &Bot{
		session:   session,
		registry:  reg,
		catalog:   catalog,
		messenger: messenger,
		checker:   checker,
	}

	// Register command handlers
	b.registerHandlers()

	return b
}

// Start opens the Discord connection and registers the slash commands
func (b *Bot) Start(ctx context.Context) error {
	// Open Discord connection
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	slog.Info("Connected to Discord", "user", b.session.State.User.Username)

	// Register slash commands
	if err := b.registerCommands(ctx); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	return nil
}

// Stop closes the Discord session
func (b *Bot) Stop() error {
	if b.session != nil {
		return b.session.Close()
	}
	return nil
}

// registerHandlers sets up Discord event handlers
func (b *Bot) registerHandlers() {
	b.session.AddHandler(b.handleInteraction)
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("Bot is ready", "guilds", len(r.Guilds))
	})
}

// handleInteraction routes slash commands and button clicks
func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.handleCommand(s, i)
	case discordgo.InteractionMessageComponent:
		b.handleComponent(s, i)
	}
}

func (b *Bot) handleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	slog.Debug("Received command", "command", data.Name, "user", interactionUser(i).ID)

	switch data.Name {
	case "start":
		b.handleStart(s, i)
	case "add":
		b.handleAdd(s, i)
	case "stats":
		b.handleStats(s, i)
	case "users":
		b.handleUsers(s, i)
	case "request":
		b.handleRequest(s, i)
	case "check":
		b.handleCheck(s, i)
	default:
		slog.Warn("Unknown command", "command", data.Name)
	}
}

// interactionUser returns the invoking user in guilds and DMs alike
func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	if i.User != nil {
		return i.User
	}
	return &discordgo.User{}
}

func displayName(u *discordgo.User) string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

func isDirectMessage(i *discordgo.InteractionCreate) bool {
	return i.GuildID == ""
}
