package bot

import (
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/IceQ1337/SteamBanChecker/internal/messages"
	"github.com/IceQ1337/SteamBanChecker/internal/registry"
)

// Action is what a button click asks for
type Action int

const (
	ActionUnknown Action = iota
	ActionAccept
	ActionDeny
	ActionListPrev
	ActionListNext
	ActionListUser
	ActionRemove
	ActionListCancel
	ActionMenuCancel
)

const (
	prefixAccept   = "user-accept-"
	prefixDeny     = "user-deny-"
	prefixListPrev = "user-list-prev-"
	prefixListNext = "user-list-next-"
	prefixListUser = "user-list-user-"
	prefixRemove   = "user-action-remove-"

	idListCancel = "user-list-cancel"
	idMenuCancel = "user-action-cancel"

	usersPerRow    = 3
	maxButtonLabel = 80
)

var actionPrefixes = []struct {
	prefix string
	action Action
}{
	{prefixAccept, ActionAccept},
	{prefixDeny, ActionDeny},
	{prefixListPrev, ActionListPrev},
	{prefixListNext, ActionListNext},
	{prefixListUser, ActionListUser},
	{prefixRemove, ActionRemove},
}

// ParseCustomID splits a button id into its action and argument.
// The argument is a user ID or, for list navigation, the target page.
func ParseCustomID(id string) (Action, string) {
	switch id {
	case idListCancel:
		return ActionListCancel, ""
	case idMenuCancel:
		return ActionMenuCancel, ""
	}
	for _, p := range actionPrefixes {
		if arg, ok := strings.CutPrefix(id, p.prefix); ok && arg != "" {
			return p.action, arg
		}
	}
	return ActionUnknown, ""
}

// RequestKeyboard returns the accept/deny buttons sent to the admin for an access request
func RequestKeyboard(catalog *messages.Catalog, userID string) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{
				Label:    catalog.Get("button_accept"),
				Style:    discordgo.SuccessButton,
				CustomID: prefixAccept + userID,
			},
			discordgo.Button{
				Label:    catalog.Get("button_deny"),
				Style:    discordgo.DangerButton,
				CustomID: prefixDeny + userID,
			},
		}},
	}
}

// UserListKeyboard lays out one page of subscribers in rows of three,
// followed by a navigation row.
func UserListKeyboard(catalog *messages.Catalog, page *registry.Page) []discordgo.MessageComponent {
	var rows []discordgo.MessageComponent

	var row []discordgo.MessageComponent
	for _, sub := range page.Subscribers {
		label := sub.DisplayName
		if label == "" {
			label = sub.SubscriberID
		}
		row = append(row, discordgo.Button{
			Label:    truncate(label, maxButtonLabel),
			Style:    discordgo.SecondaryButton,
			CustomID: prefixListUser + sub.SubscriberID,
		})
		if len(row) == usersPerRow {
			rows = append(rows, discordgo.ActionsRow{Components: row})
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, discordgo.ActionsRow{Components: row})
	}

	var nav []discordgo.MessageComponent
	if page.Number > 1 {
		nav = append(nav, discordgo.Button{
			Label:    catalog.Get("button_prev"),
			Style:    discordgo.PrimaryButton,
			CustomID: prefixListPrev + strconv.Itoa(page.Number-1),
		})
	}
	nav = append(nav, discordgo.Button{
		Label:    catalog.Get("button_cancel"),
		Style:    discordgo.SecondaryButton,
		CustomID: idListCancel,
	})
	if page.Number < page.TotalPages {
		nav = append(nav, discordgo.Button{
			Label:    catalog.Get("button_next"),
			Style:    discordgo.PrimaryButton,
			CustomID: prefixListNext + strconv.Itoa(page.Number+1),
		})
	}

	return append(rows, discordgo.ActionsRow{Components: nav})
}

// UserActionKeyboard returns the actions available for one selected subscriber
func UserActionKeyboard(catalog *messages.Catalog, userID string) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{
				Label:    catalog.Get("button_remove"),
				Style:    discordgo.DangerButton,
				CustomID: prefixRemove + userID,
			},
			discordgo.Button{
				Label:    catalog.Get("button_cancel"),
				Style:    discordgo.SecondaryButton,
				CustomID: idMenuCancel,
			},
		}},
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
