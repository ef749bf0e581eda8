package registry

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/IceQ1337/SteamBanChecker/internal/steam"
	"github.com/IceQ1337/SteamBanChecker/internal/storage"
)

const (
	adminID = "100"
	steamA  = "76561197960287930"
	steamB  = "76561198000000001"
)

type fakeResolver struct {
	err error
}

func (f *fakeResolver) Resolve(ctx context.Context, input string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if steam.IsValidSteamID64(input) {
		return input, nil
	}
	return "", steam.ErrInvalidReference
}

type fakeFetcher struct {
	players map[string]steam.PlayerBans
	err     error
	calls   int
}

func (f *fakeFetcher) GetPlayerBans(ctx context.Context, steamIDs []string) ([]steam.PlayerBans, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []steam.PlayerBans
	for _, id := range steamIDs {
		if p, ok := f.players[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type RegistrySuite struct {
	suite.Suite
	repo     *storage.Repository
	resolver *fakeResolver
	fetcher  *fakeFetcher
	manager  *Manager
	ctx      context.Context
}

func (s *RegistrySuite) SetupTest() {
	repo, err := storage.NewRepository(filepath.Join(s.T().TempDir(), "bot.db"))
	s.Require().NoError(err)
	s.repo = repo
	s.resolver = &fakeResolver{}
	s.fetcher = &fakeFetcher{players: map[string]steam.PlayerBans{
		steamA: {SteamID: steamA},
		steamB: {SteamID: steamB, VACBanned: true, NumberOfVACBans: 1},
	}}
	s.manager = New(repo, s.resolver, s.fetcher, Config{AdminID: adminID, AllowRequests: true})
	s.ctx = context.Background()
}

func (s *RegistrySuite) TearDownTest() {
	s.Require().NoError(s.repo.Close())
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) TestRegisterIdentity() {
	res, id, err := s.manager.RegisterIdentity(s.ctx, "u1", steamA)
	s.Require().NoError(err)
	s.Equal(Created, res)
	s.Equal(steamA, id)

	res, _, err = s.manager.RegisterIdentity(s.ctx, "u2", steamA)
	s.Require().NoError(err)
	s.Equal(Added, res)

	calls := s.fetcher.calls
	res, _, err = s.manager.RegisterIdentity(s.ctx, "u1", steamA)
	s.Require().NoError(err)
	s.Equal(AlreadyRegistered, res)
	s.Equal(calls, s.fetcher.calls, "known profiles are not fetched again")

	p, err := s.repo.GetProfile(s.ctx, steamA)
	s.Require().NoError(err)
	s.Equal([]string{"u1", "u2"}, p.Subscribers)
}

func (s *RegistrySuite) TestRegisterSeedsCurrentBanState() {
	res, _, err := s.manager.RegisterIdentity(s.ctx, "u1", steamB)
	s.Require().NoError(err)
	s.Equal(Created, res)

	p, err := s.repo.GetProfile(s.ctx, steamB)
	s.Require().NoError(err)
	s.True(p.VACBanned)
	s.Equal(1, p.NumberOfVACBans)
	s.True(p.Tracked)
}

func (s *RegistrySuite) TestRegisterInvalidReference() {
	res, _, err := s.manager.RegisterIdentity(s.ctx, "u1", "not a profile")
	s.Require().NoError(err)
	s.Equal(InvalidReference, res)

	// Valid format, but Steam returns no record
	res, _, err = s.manager.RegisterIdentity(s.ctx, "u1", "76561198999999999")
	s.Require().NoError(err)
	s.Equal(InvalidReference, res)

	n, err := s.repo.CountProfiles(s.ctx)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *RegistrySuite) TestRegisterFetchFailureUsesDefaults() {
	s.fetcher.err = &steam.FetchError{Op: "GetPlayerBans", StatusCode: 503}
	res, _, err := s.manager.RegisterIdentity(s.ctx, "u1", steamB)
	s.Require().NoError(err)
	s.Equal(Created, res)

	p, err := s.repo.GetProfile(s.ctx, steamB)
	s.Require().NoError(err)
	s.Equal(storage.BanState{}, p.State())
	s.True(p.Tracked)
}

func (s *RegistrySuite) TestRegisterResolveFailure() {
	s.resolver.err = &steam.FetchError{Op: "ResolveVanity", StatusCode: 500}
	res, _, err := s.manager.RegisterIdentity(s.ctx, "u1", "gabelogannewell")
	s.Error(err)
	s.Equal(InvalidReference, res)
}

func (s *RegistrySuite) TestApproveAndRevoke() {
	ok, err := s.manager.IsAuthorized(s.ctx, "u1")
	s.Require().NoError(err)
	s.False(ok)

	res, err := s.manager.RequestAccess(s.ctx, "u1", "alice")
	s.Require().NoError(err)
	s.Equal(RequestSent, res)

	res, err = s.manager.RequestAccess(s.ctx, "u1", "alice")
	s.Require().NoError(err)
	s.Equal(RequestPending, res)

	approved, err := s.manager.ApproveSubscriber(s.ctx, "u1", "alice")
	s.Require().NoError(err)
	s.Equal(Approved, approved)

	_, err = s.manager.PendingRequest(s.ctx, "u1")
	s.ErrorIs(err, storage.ErrNotFound, "approval clears the request")

	approved, err = s.manager.ApproveSubscriber(s.ctx, "u1", "alice")
	s.Require().NoError(err)
	s.Equal(AlreadyApproved, approved)

	ok, err = s.manager.IsAuthorized(s.ctx, "u1")
	s.Require().NoError(err)
	s.True(ok)

	res, err = s.manager.RequestAccess(s.ctx, "u1", "alice")
	s.Require().NoError(err)
	s.Equal(RequestAlreadyApproved, res)

	s.Require().NoError(s.manager.RevokeSubscriber(s.ctx, "u1"))
	s.Require().NoError(s.manager.RevokeSubscriber(s.ctx, "u1"))

	ok, err = s.manager.IsAuthorized(s.ctx, "u1")
	s.Require().NoError(err)
	s.False(ok)
}

func (s *RegistrySuite) TestRequestAccessRules() {
	res, err := s.manager.RequestAccess(s.ctx, adminID, "admin")
	s.Require().NoError(err)
	s.Equal(RequestFromAdmin, res)

	ok, err := s.manager.IsAuthorized(s.ctx, adminID)
	s.Require().NoError(err)
	s.True(ok)

	closed := New(s.repo, s.resolver, s.fetcher, Config{AdminID: adminID})
	res, err = closed.RequestAccess(s.ctx, "u2", "bob")
	s.Require().NoError(err)
	s.Equal(RequestsDisabled, res)

	_, err = s.manager.RequestAccess(s.ctx, "u3", "carol")
	s.Require().NoError(err)
	s.Require().NoError(s.manager.DenyRequest(s.ctx, "u3"))
	_, err = s.manager.PendingRequest(s.ctx, "u3")
	s.ErrorIs(err, storage.ErrNotFound)
}

func (s *RegistrySuite) TestListSubscribers() {
	for i := 1; i <= 10; i++ {
		_, err := s.manager.ApproveSubscriber(s.ctx, fmt.Sprintf("s%02d", i), fmt.Sprintf("user %d", i))
		s.Require().NoError(err)
	}

	page, err := s.manager.ListSubscribers(s.ctx, 1, 0)
	s.Require().NoError(err)
	s.Equal(DefaultPageSize, page.Size)
	s.Equal(10, page.Total)
	s.Equal(2, page.TotalPages)
	s.Require().Len(page.Subscribers, 6)
	s.Equal("s01", page.Subscribers[0].SubscriberID)

	page, err = s.manager.ListSubscribers(s.ctx, 2, DefaultPageSize)
	s.Require().NoError(err)
	s.Require().Len(page.Subscribers, 4)
	s.Equal("s07", page.Subscribers[0].SubscriberID)
	s.Equal("s10", page.Subscribers[3].SubscriberID)

	page, err = s.manager.ListSubscribers(s.ctx, 3, DefaultPageSize)
	s.Require().NoError(err)
	s.Empty(page.Subscribers)
}

func (s *RegistrySuite) TestStats() {
	stats, err := s.manager.Stats(s.ctx, "u1")
	s.Require().NoError(err)
	s.Nil(stats)

	_, err = s.manager.ApproveSubscriber(s.ctx, "u1", "alice")
	s.Require().NoError(err)
	_, _, err = s.manager.RegisterIdentity(s.ctx, "u1", steamA)
	s.Require().NoError(err)
	_, _, err = s.manager.RegisterIdentity(s.ctx, "u1", steamB)
	s.Require().NoError(err)

	// A detected ban stops tracking
	_, err = s.repo.UpdateBanState(s.ctx, steamA,
		storage.BanState{},
		storage.BanState{NumberOfGameBans: 1},
		false, []string{"game_ban_started"}, time.Now())
	s.Require().NoError(err)

	stats, err = s.manager.Stats(s.ctx, "u1")
	s.Require().NoError(err)
	s.Require().NotNil(stats)
	s.Equal(2, stats.ProfileCount)
	s.Equal(1, stats.BannedProfiles)
	s.Equal(1, stats.Checked)
	s.Equal(50, stats.BannedPercent)
	s.Equal(2, stats.SubscriberCount, "admin counts as a user")
	s.Equal(2, stats.UserProfiles)
	s.Equal(1, stats.UserProfilesBanned)
	s.Equal(50, stats.UserBannedPercent)
	s.Require().Len(stats.RecentEvents, 1)
	s.Equal(steamA, stats.RecentEvents[0].SteamID)
	s.Equal("game_ban_started", stats.RecentEvents[0].Kind)
}

func (s *RegistrySuite) TestResultStrings() {
	s.Equal("created", Created.String())
	s.Equal("already_registered", AlreadyRegistered.String())
	s.Equal("invalid_reference", InvalidReference.String())
}
