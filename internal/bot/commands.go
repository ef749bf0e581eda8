package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/IceQ1337/SteamBanChecker/internal/messages"
	"github.com/IceQ1337/SteamBanChecker/internal/registry"
	"github.com/IceQ1337/SteamBanChecker/internal/steam"
)

const commandTimeout = 10 * time.Second

// Slash command definitions
func commandDefinitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "start",
			Description: "Show what this bot does",
		},
		{
			Name:        "add",
			Description: "Check a Steam profile for bans",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "reference",
					Description: "SteamID64, profile URL or custom URL",
					Required:    true,
				},
			},
		},
		{
			Name:        "stats",
			Description: "Show ban statistics",
		},
		{
			Name:        "users",
			Description: "Manage approved users (owner only)",
		},
		{
			Name:        "request",
			Description: "Ask the bot owner for access",
		},
		{
			Name:        "check",
			Description: "Run a ban check now (owner only)",
		},
	}
}

// registerCommands registers all slash commands with Discord
func (b *Bot) registerCommands(ctx context.Context) error {
	slog.Info("Registering slash commands")

	defs := commandDefinitions()
	for _, cmd := range defs {
		_, err := b.session.ApplicationCommandCreate(
			b.session.State.User.ID,
			"", // Empty string = global command
			cmd,
			discordgo.WithContext(ctx),
		)
		if err != nil {
			return fmt.Errorf("failed to register command %s: %w", cmd.Name, err)
		}
		slog.Debug("Registered command", "name", cmd.Name)
	}

	slog.Info("Slash commands registered", "count", len(defs))
	return nil
}

// handleStart handles the /start command
func (b *Bot) handleStart(s *discordgo.Session, i *discordgo.InteractionCreate) {
	respondEphemeral(s, i, b.catalog.Get("user_start_info"))
}

// handleAdd handles the /add command
func (b *Bot) handleAdd(s *discordgo.Session, i *discordgo.InteractionCreate) {
	user := interactionUser(i)
	reference := i.ApplicationCommandData().Options[0].StringValue()

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	ok, err := b.registry.IsAuthorized(ctx, user.ID)
	if err != nil {
		slog.Error("Failed to check authorization", "user", user.ID, "error", err)
		respondEphemeral(s, i, b.catalog.Get("command_failed"))
		return
	}
	if !ok {
		respondEphemeral(s, i, b.catalog.Get("user_not_authorized"))
		return
	}

	// Resolving and fetching may take a while
	err = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		slog.Warn("Failed to defer interaction response", "user", user.ID, "error", err)
		return
	}

	result, steamID, err := b.registry.RegisterIdentity(ctx, user.ID, reference)
	if err != nil {
		slog.Error("Failed to register profile", "user", user.ID, "reference", reference, "error", err)
	}
	editResponse(s, i, registerReply(b.catalog, result, steamID, err))
}

// registerReply picks the answer to an /add command
func registerReply(catalog *messages.Catalog, result registry.RegisterResult, steamID string, err error) string {
	if err != nil {
		var fetchErr *steam.FetchError
		if errors.As(err, &fetchErr) {
			return catalog.Get("profile_lookup_failed")
		}
		return catalog.Get("command_failed")
	}

	vars := map[string]string{"STEAMID": steamID}
	switch result {
	case registry.Created:
		return catalog.Format("profile_added", vars)
	case registry.Added:
		return catalog.Format("profile_subscribed", vars)
	case registry.AlreadyRegistered:
		return catalog.Format("profile_exists", vars)
	default:
		return catalog.Get("profile_invalid")
	}
}

// handleStats handles the /stats command
func (b *Bot) handleStats(s *discordgo.Session, i *discordgo.InteractionCreate) {
	user := interactionUser(i)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	ok, err := b.registry.IsAuthorized(ctx, user.ID)
	if err == nil && !ok {
		respondEphemeral(s, i, b.catalog.Get("user_not_authorized"))
		return
	}

	var stats *registry.Stats
	if err == nil {
		stats, err = b.registry.Stats(ctx, user.ID)
	}
	if err != nil {
		slog.Error("Failed to get statistics", "user", user.ID, "error", err)
		respondEphemeral(s, i, b.catalog.Get("command_failed"))
		return
	}

	respondEphemeral(s, i, statsReply(b.catalog, stats))
}

// statsReply renders the global statistics followed by the caller's own and
// the latest bans on the caller's profiles
func statsReply(catalog *messages.Catalog, stats *registry.Stats) string {
	if stats == nil {
		return catalog.Get("no_statistics")
	}

	reply := catalog.Format("bot_statistics", map[string]string{
		"TOTAL":   strconv.Itoa(stats.ProfileCount),
		"USERS":   strconv.Itoa(stats.SubscriberCount),
		"BANNED":  strconv.Itoa(stats.BannedProfiles),
		"CHECKED": strconv.Itoa(stats.Checked),
		"PERCENT": strconv.Itoa(stats.BannedPercent),
	})
	if stats.UserProfiles > 0 {
		reply += "\n\n" + catalog.Format("user_statistics", map[string]string{
			"PROFILES": strconv.Itoa(stats.UserProfiles),
			"BANNED":   strconv.Itoa(stats.UserProfilesBanned),
			"PERCENT":  strconv.Itoa(stats.UserBannedPercent),
		})
	}
	if len(stats.RecentEvents) > 0 {
		reply += "\n\n" + catalog.Get("recent_bans_title")
		for _, e := range stats.RecentEvents {
			reply += "\n" + catalog.Format("recent_ban_entry", map[string]string{
				"DATE":    e.DetectedAt.Format(time.DateOnly),
				"STEAMID": e.SteamID,
				"KIND":    catalog.Get("kind_" + e.Kind),
			})
		}
	}
	return reply
}

// handleUsers handles the /users command
func (b *Bot) handleUsers(s *discordgo.Session, i *discordgo.InteractionCreate) {
	user := interactionUser(i)
	if !b.registry.IsAdmin(user.ID) {
		respondEphemeral(s, i, b.catalog.Get("user_not_authorized"))
		return
	}
	if !isDirectMessage(i) {
		respondEphemeral(s, i, b.catalog.Get("is_private_command"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	content, components, err := b.userListMenu(ctx, 1)
	if err != nil {
		slog.Error("Failed to list users", "error", err)
		respondEphemeral(s, i, b.catalog.Get("command_failed"))
		return
	}

	err = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:    content,
			Components: components,
		},
	})
	if err != nil {
		slog.Warn("Failed to respond to interaction", "error", err)
	}
}

// userListMenu renders one page of the subscriber list
func (b *Bot) userListMenu(ctx context.Context, number int) (string, []discordgo.MessageComponent, error) {
	page, err := b.registry.ListSubscribers(ctx, number, registry.DefaultPageSize)
	if err != nil {
		return "", nil, err
	}
	if page.Total == 0 {
		return b.catalog.Get("user_empty"), []discordgo.MessageComponent{}, nil
	}
	// Pages past the end fall back to the last one
	if len(page.Subscribers) == 0 && number != page.TotalPages {
		return b.userListMenu(ctx, page.TotalPages)
	}

	content := b.catalog.Format("menu_user_list_title", map[string]string{
		"PAGE":  strconv.Itoa(page.Number),
		"PAGES": strconv.Itoa(page.TotalPages),
	})
	return content, UserListKeyboard(b.catalog, page), nil
}

// handleRequest handles the /request command
func (b *Bot) handleRequest(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !isDirectMessage(i) {
		respondEphemeral(s, i, b.catalog.Get("is_private_command"))
		return
	}

	user := interactionUser(i)
	name := displayName(user)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	result, err := b.registry.RequestAccess(ctx, user.ID, name)
	if err != nil {
		slog.Error("Failed to store access request", "user", user.ID, "error", err)
		respondEphemeral(s, i, b.catalog.Get("command_failed"))
		return
	}

	switch result {
	case registry.RequestSent:
		err := b.messenger.SendComponents(ctx, b.adminID(),
			b.catalog.Format("user_request_send_master", map[string]string{"USER": fmt.Sprintf("%s (`%s`)", name, user.ID)}),
			RequestKeyboard(b.catalog, user.ID),
		)
		if err != nil {
			slog.Warn("Failed to forward access request", "user", user.ID, "error", err)
		}
		slog.Info("Access requested", "user", user.ID, "name", name)
		respondEphemeral(s, i, b.catalog.Get("user_request_send"))
	case registry.RequestPending:
		respondEphemeral(s, i, b.catalog.Get("user_request_pending"))
	case registry.RequestAlreadyApproved:
		respondEphemeral(s, i, b.catalog.Get("user_request_accepted"))
	case registry.RequestFromAdmin:
		respondEphemeral(s, i, b.catalog.Get("user_request_master"))
	case registry.RequestsDisabled:
		respondEphemeral(s, i, b.catalog.Get("user_request_disabled"))
	}
}

// handleCheck handles the /check command
func (b *Bot) handleCheck(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.registry.IsAdmin(interactionUser(i).ID) {
		respondEphemeral(s, i, b.catalog.Get("user_not_authorized"))
		return
	}
	if b.checker != nil && b.checker.Trigger() {
		respondEphemeral(s, i, b.catalog.Get("check_started"))
		return
	}
	respondEphemeral(s, i, b.catalog.Get("check_queued"))
}

func (b *Bot) adminID() string {
	return b.registry.AdminID()
}

// Helper functions

func respondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		slog.Warn("Failed to respond to interaction", "error", err)
	}
}

func editResponse(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &content,
	}); err != nil {
		slog.Warn("Failed to edit interaction response", "error", err)
	}
}
