package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sortie-social/sortie-api/internal/models"
	"github.com/sortie-social/sortie-api/pkg/push"
)

func newTestDispatcher(t *testing.T, registry *stubDeviceRegistry, groups *stubGroupRepo, social *stubSocialRepo, notifications *stubNotificationRepo, gateway *fakeGateway) Dispatcher {
	t.Helper()
	return NewDispatcher(registry, groups, social, notifications, gateway, nil, "", nil, zerolog.Nop())
}

func TestNotifyGroupMessageReportsPartialFailure(t *testing.T) {
	groups := newStubGroupRepo()
	group := models.Group{Name: "rooftop plans"}
	require.NoError(t, groups.CreateWithMembers(context.Background(), &group, []models.GroupMember{
		{UserID: "sender", IsAdmin: true},
		{UserID: "ok-user"},
		{UserID: "stale-user"},
		{UserID: "flaky-user"},
	}))

	registry := newStubDeviceRegistry(map[string]string{
		"ok-user":    "token-ok",
		"stale-user": "token-stale",
		"flaky-user": "token-flaky",
	})
	gateway := newFakeGateway()
	gateway.outcomes["token-stale"] = push.TokenInvalid
	gateway.outcomes["token-flaky"] = push.TransientFailure

	notifications := &stubNotificationRepo{}
	dispatcher := newTestDispatcher(t, registry, groups, newStubSocialRepo(), notifications, gateway)

	report := dispatcher.NotifyGroupMessage(context.Background(), "sender", group.ID, "who is in?", 7)

	require.Equal(t, 3, report.Attempted)
	require.Equal(t, 1, report.Delivered)
	require.Equal(t, 1, report.Stale)
	require.Equal(t, 1, report.Failed)

	require.Contains(t, registry.evicted, "stale-user")
	require.NotContains(t, registry.evicted, "ok-user")

	// One in-app row per recipient, sender excluded.
	rows, err := notifications.ListByUser(context.Background(), "ok-user", 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	rows, err = notifications.ListByUser(context.Background(), "sender", 10, 0)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestNotifyBroadcastCapsAudience(t *testing.T) {
	gateway := newFakeGateway()
	dispatcher := newTestDispatcher(t, newStubDeviceRegistry(nil), newStubGroupRepo(), newStubSocialRepo(), &stubNotificationRepo{}, gateway)

	tokens := make([]string, 0, 120)
	for i := 0; i < 120; i++ {
		tokens = append(tokens, fmt.Sprintf("token-%03d", i))
	}

	report := dispatcher.NotifyBroadcast(context.Background(), BroadcastEvent{
		Title: "New Venue",
		Body:  "The Night Garden just opened",
	}, tokens)

	require.Equal(t, 50, report.Attempted)
	require.Equal(t, 50, report.Delivered)
	require.Len(t, gateway.sentTokens(), 50)
}

func TestNotifyBroadcastEmptyAudienceIsNoop(t *testing.T) {
	gateway := newFakeGateway()
	dispatcher := newTestDispatcher(t, newStubDeviceRegistry(nil), newStubGroupRepo(), newStubSocialRepo(), &stubNotificationRepo{}, gateway)

	report := dispatcher.NotifyBroadcast(context.Background(), BroadcastEvent{Title: "x", Body: "y"}, nil)
	require.Zero(t, report.Attempted)
	require.Empty(t, gateway.sentTokens())
}

func TestNotifyDirectMessagePersistsWithoutToken(t *testing.T) {
	gateway := newFakeGateway()
	notifications := &stubNotificationRepo{}
	social := newStubSocialRepo()
	social.users["ava"] = "Ava"
	dispatcher := newTestDispatcher(t, newStubDeviceRegistry(nil), newStubGroupRepo(), social, notifications, gateway)

	dispatcher.NotifyDirectMessage(context.Background(), "ava", "ben", "hello there", 3)

	require.Empty(t, gateway.sentTokens(), "no registered token means no push attempt")

	rows, err := notifications.ListByUser(context.Background(), "ben", 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "direct_message", rows[0].Type)
	require.Equal(t, "Ava: hello there", rows[0].Message)
}

func TestNotifyDirectMessageTruncatesPreview(t *testing.T) {
	gateway := newFakeGateway()
	registry := newStubDeviceRegistry(map[string]string{"ben": "token-ben"})
	dispatcher := newTestDispatcher(t, registry, newStubGroupRepo(), newStubSocialRepo(), &stubNotificationRepo{}, gateway)

	long := strings.Repeat("a", 150)
	dispatcher.NotifyDirectMessage(context.Background(), "ava", "ben", long, 4)

	sends := gateway.sentTokens()
	require.Len(t, sends, 1)
	body := gateway.sends[0].note.Body
	require.True(t, strings.HasSuffix(body, "..."))
	require.LessOrEqual(t, len(body), len("ava: ")+100)
}

func TestNotifyBookingStatusChangedFallsBackOnVenueName(t *testing.T) {
	gateway := newFakeGateway()
	registry := newStubDeviceRegistry(map[string]string{"carl": "token-carl"})
	social := newStubSocialRepo()
	social.venues[9] = "The Night Garden"
	dispatcher := newTestDispatcher(t, registry, newStubGroupRepo(), social, &stubNotificationRepo{}, gateway)

	dispatcher.NotifyBookingStatusChanged(context.Background(), "carl", 12, 9, "confirmed")
	require.Len(t, gateway.sends, 1)
	require.Equal(t, "Your booking at The Night Garden is now confirmed", gateway.sends[0].note.Body)

	dispatcher.NotifyBookingStatusChanged(context.Background(), "carl", 13, 999, "declined")
	require.Len(t, gateway.sends, 2)
	require.Equal(t, "Your booking at the venue is now declined", gateway.sends[1].note.Body)
}

func TestNotifyFriendRequestUsesDisplayName(t *testing.T) {
	gateway := newFakeGateway()
	registry := newStubDeviceRegistry(map[string]string{"dina": "token-dina"})
	social := newStubSocialRepo()
	social.users["erin"] = "Erin"
	notifications := &stubNotificationRepo{}
	dispatcher := newTestDispatcher(t, registry, newStubGroupRepo(), social, notifications, gateway)

	dispatcher.NotifyFriendRequest(context.Background(), "erin", "dina")

	require.Len(t, gateway.sends, 1)
	require.Equal(t, "Friend Request", gateway.sends[0].note.Title)
	require.Equal(t, "Erin sent you a friend request", gateway.sends[0].note.Body)

	rows, err := notifications.ListByUser(context.Background(), "dina", 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
