package steam

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidReference is returned when user input does not name a Steam account
var ErrInvalidReference = errors.New("invalid steam reference")

var (
	profileRef = regexp.MustCompile(`^(?:https?://(?:www\.)?steamcommunity\.com/profiles/([0-9]{17})/?|([0-9]{17}))$`)
	vanityRef  = regexp.MustCompile(`^https?://(?:www\.)?steamcommunity\.com/id/([^/?#]+)/?$`)
)

type profileXML struct {
	XMLName   xml.Name `xml:"profile"`
	SteamID64 string   `xml:"steamID64"`
}

// Resolve turns a SteamID64, a /profiles/ URL or a /id/ vanity URL into a
// SteamID64. Input that names no valid account yields ErrInvalidReference;
// a failed vanity lookup yields a *FetchError.
func (c *Client) Resolve(ctx context.Context, input string) (string, error) {
	input = strings.TrimSpace(input)

	if m := profileRef.FindStringSubmatch(input); m != nil {
		steamID := m[1] + m[2]
		if !IsValidSteamID64(steamID) {
			return "", fmt.Errorf("%q: %w", input, ErrInvalidReference)
		}
		return steamID, nil
	}

	if m := vanityRef.FindStringSubmatch(input); m != nil {
		steamID, err := c.resolveVanity(ctx, m[1])
		if err != nil {
			return "", err
		}
		if !IsValidSteamID64(steamID) {
			return "", fmt.Errorf("%q: %w", input, ErrInvalidReference)
		}
		return steamID, nil
	}

	return "", fmt.Errorf("%q: %w", input, ErrInvalidReference)
}

// resolveVanity looks up a custom profile name through the community XML endpoint
func (c *Client) resolveVanity(ctx context.Context, vanity string) (string, error) {
	endpoint := fmt.Sprintf("%s/id/%s?xml=1", c.communityURL, url.PathEscape(vanity))

	resp, err := c.doRequest(ctx, endpoint)
	if err != nil {
		return "", &FetchError{Op: "ResolveVanity", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &FetchError{Op: "ResolveVanity", StatusCode: resp.StatusCode, Err: errors.New("unexpected response")}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &FetchError{Op: "ResolveVanity", StatusCode: resp.StatusCode, Err: err}
	}

	// Unknown names answer 200 with a <response><error> document
	var profile profileXML
	if err := xml.Unmarshal(body, &profile); err != nil || profile.SteamID64 == "" {
		return "", fmt.Errorf("vanity %q: %w", vanity, ErrInvalidReference)
	}
	return strings.TrimSpace(profile.SteamID64), nil
}
