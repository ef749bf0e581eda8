package steam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// MaxBatchSize is the number of Steam IDs GetPlayerBans accepts per request
const MaxBatchSize = 100

// PlayerBans is one record of the ISteamUser/GetPlayerBans response
type PlayerBans struct {
	SteamID          string `json:"SteamId"`
	CommunityBanned  bool   `json:"CommunityBanned"`
	VACBanned        bool   `json:"VACBanned"`
	NumberOfVACBans  int    `json:"NumberOfVACBans"`
	DaysSinceLastBan int    `json:"DaysSinceLastBan"`
	NumberOfGameBans int    `json:"NumberOfGameBans"`
	EconomyBan       string `json:"EconomyBan"`
}

type playerBansResponse struct {
	Players *[]PlayerBans `json:"players"`
}

// GetPlayerBans fetches the current ban state of up to MaxBatchSize Steam IDs
func (c *Client) GetPlayerBans(ctx context.Context, steamIDs []string) ([]PlayerBans, error) {
	if len(steamIDs) == 0 {
		return nil, nil
	}
	if len(steamIDs) > MaxBatchSize {
		return nil, fmt.Errorf("steam GetPlayerBans: %d ids exceeds batch limit of %d", len(steamIDs), MaxBatchSize)
	}

	query := url.Values{}
	query.Set("key", c.apiKey)
	query.Set("steamids", strings.Join(steamIDs, ","))
	endpoint := fmt.Sprintf("%s/ISteamUser/GetPlayerBans/v1/?%s", c.baseURL, query.Encode())

	var resp playerBansResponse
	if err := c.get(ctx, "GetPlayerBans", endpoint, &resp); err != nil {
		return nil, err
	}
	if resp.Players == nil {
		return nil, &FetchError{Op: "GetPlayerBans", Err: errors.New("response has no players field")}
	}

	players := make([]PlayerBans, 0, len(*resp.Players))
	for _, p := range *resp.Players {
		if p.SteamID == "" || p.NumberOfVACBans < 0 || p.NumberOfGameBans < 0 {
			slog.Warn("Skipping malformed player record", "record", p)
			continue
		}
		players = append(players, p)
	}
	return players, nil
}
