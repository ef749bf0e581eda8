package steam

import (
	"context"
	"fmt"
	"net/url"
)

// PlayerSummary is the public profile data shown alongside ban notifications
type PlayerSummary struct {
	SteamID     string `json:"steamid"`
	PersonaName string `json:"personaname"`
	ProfileURL  string `json:"profileurl"`
	AvatarFull  string `json:"avatarfull"`
}

type playerSummariesResponse struct {
	Response struct {
		Players []PlayerSummary `json:"players"`
	} `json:"response"`
}

// GetPlayerSummary fetches persona name and avatar for a single Steam ID
func (c *Client) GetPlayerSummary(ctx context.Context, steamID string) (*PlayerSummary, error) {
	query := url.Values{}
	query.Set("key", c.apiKey)
	query.Set("steamids", steamID)
	endpoint := fmt.Sprintf("%s/ISteamUser/GetPlayerSummaries/v2/?%s", c.baseURL, query.Encode())

	var resp playerSummariesResponse
	if err := c.get(ctx, "GetPlayerSummaries", endpoint, &resp); err != nil {
		return nil, err
	}

	for _, p := range resp.Response.Players {
		if p.SteamID == steamID {
			return &p, nil
		}
	}
	return nil, &FetchError{Op: "GetPlayerSummaries", Err: fmt.Errorf("no summary for %s", steamID)}
}
