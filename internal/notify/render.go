package notify

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/IceQ1337/SteamBanChecker/internal/messages"
	"github.com/IceQ1337/SteamBanChecker/internal/steam"
)

// SummaryFetcher looks up public profile data for decorating alerts
type SummaryFetcher interface {
	GetPlayerSummary(ctx context.Context, steamID string) (*steam.PlayerSummary, error)
}

// BanRenderer renders ban notifications from the message catalog
type BanRenderer struct {
	catalog   *messages.Catalog
	summaries SummaryFetcher
}

// NewBanRenderer creates a renderer. summaries may be nil, in which case
// messages carry no persona name or avatar.
func NewBanRenderer(catalog *messages.Catalog, summaries SummaryFetcher) *BanRenderer {
	return &BanRenderer{catalog: catalog, summaries: summaries}
}

// Render builds the profile link plus the event text, decorated with the
// player's persona and avatar when they can be fetched
func (r *BanRenderer) Render(ctx context.Context, n Notification) Message {
	count := n.GameBans
	if strings.HasPrefix(n.Kind, "vac_") {
		count = n.VACBans
	}

	profileURL := steam.ProfileURL(n.SteamID)
	msg := Message{
		Content: profileURL + "\n" + r.catalog.Format(n.Kind, map[string]string{
			"STEAMID": n.SteamID,
			"COUNT":   strconv.Itoa(count),
		}),
		URL: profileURL,
	}

	if r.summaries == nil {
		return msg
	}
	summary, err := r.summaries.GetPlayerSummary(ctx, n.SteamID)
	if err != nil {
		slog.Debug("No player summary for notification", "steam_id", n.SteamID, "error", err)
		return msg
	}
	msg.Title = summary.PersonaName
	msg.ImageURL = summary.AvatarFull
	return msg
}
