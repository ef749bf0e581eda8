package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/bwmarrin/discordgo"

	"github.com/IceQ1337/SteamBanChecker/internal/notify"
	"github.com/IceQ1337/SteamBanChecker/internal/registry"
	"github.com/IceQ1337/SteamBanChecker/internal/storage"
)

// handleComponent handles button clicks on the admin menus
func (b *Bot) handleComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	customID := i.MessageComponentData().CustomID
	user := interactionUser(i)

	// Every menu belongs to the owner
	if !b.registry.IsAdmin(user.ID) {
		respondEphemeral(s, i, b.catalog.Get("user_not_authorized"))
		return
	}

	action, arg := ParseCustomID(customID)
	slog.Debug("Received button", "custom_id", customID, "action", action)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var (
		content    string
		components []discordgo.MessageComponent
		err        error
	)

	switch action {
	case ActionAccept:
		content, err = b.acceptRequest(ctx, arg)
	case ActionDeny:
		content, err = b.denyRequest(ctx, arg)
	case ActionListPrev, ActionListNext:
		number, convErr := strconv.Atoi(arg)
		if convErr != nil {
			slog.Warn("Invalid page in button", "custom_id", customID)
			return
		}
		content, components, err = b.userListMenu(ctx, number)
	case ActionListUser:
		content, components, err = b.userMenu(ctx, arg)
	case ActionRemove:
		content, err = b.revokeUser(ctx, arg)
	case ActionListCancel, ActionMenuCancel:
		content = b.catalog.Get("menu_action_canceled")
	default:
		slog.Warn("Unknown button", "custom_id", customID)
		return
	}

	if err != nil {
		slog.Error("Failed to handle button", "custom_id", customID, "error", err)
		content = b.catalog.Get("command_failed")
		components = nil
	}
	if components == nil {
		components = []discordgo.MessageComponent{}
	}

	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    content,
			Components: components,
		},
	}); err != nil {
		slog.Warn("Failed to update menu", "error", err)
	}
}

func (b *Bot) acceptRequest(ctx context.Context, userID string) (string, error) {
	name := userID
	req, err := b.registry.PendingRequest(ctx, userID)
	switch {
	case err == nil:
		name = req.DisplayName
	case !errors.Is(err, storage.ErrNotFound):
		return "", err
	}

	result, err := b.registry.ApproveSubscriber(ctx, userID, name)
	if err != nil {
		return "", err
	}
	if result == registry.AlreadyApproved {
		return b.catalog.Get("user_already_approved"), nil
	}

	b.tell(ctx, userID, "user_request_accepted")
	return b.catalog.Get("user_request_accepted_master"), nil
}

func (b *Bot) denyRequest(ctx context.Context, userID string) (string, error) {
	if err := b.registry.DenyRequest(ctx, userID); err != nil {
		return "", err
	}
	slog.Info("Access request denied", "user", userID)
	b.tell(ctx, userID, "user_request_denied")
	return b.catalog.Get("user_request_denied_master"), nil
}

func (b *Bot) revokeUser(ctx context.Context, userID string) (string, error) {
	if err := b.registry.RevokeSubscriber(ctx, userID); err != nil {
		return "", err
	}
	b.tell(ctx, userID, "user_request_revoked")
	return b.catalog.Get("user_request_revoked_master"), nil
}

// userMenu shows the actions for one subscriber
func (b *Bot) userMenu(ctx context.Context, userID string) (string, []discordgo.MessageComponent, error) {
	sub, err := b.registry.GetSubscriber(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		// Removed in the meantime
		return b.userListMenu(ctx, 1)
	}
	if err != nil {
		return "", nil, err
	}

	content := b.catalog.Format("menu_user_selected", map[string]string{
		"USER": fmt.Sprintf("%s (`%s`)", sub.DisplayName, sub.SubscriberID),
	})
	return content, UserActionKeyboard(b.catalog, userID), nil
}

// tell sends a best-effort direct message
func (b *Bot) tell(ctx context.Context, userID, key string) {
	if err := b.messenger.Send(ctx, userID, notify.Message{Content: b.catalog.Get(key)}); err != nil {
		slog.Warn("Failed to message user", "user", userID, "error", err)
	}
}
