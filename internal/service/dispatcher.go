package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/sortie-social/sortie-api/internal/models"
	"github.com/sortie-social/sortie-api/internal/observability"
	"github.com/sortie-social/sortie-api/internal/repository"
	"github.com/sortie-social/sortie-api/pkg/push"
)

const (
	// broadcastCap bounds the blast radius of a broadcast dispatch.
	// Audiences beyond the cap are truncated, not queued.
	broadcastCap = 50
	// fanoutConcurrency bounds parallel gateway calls within one fan-out.
	fanoutConcurrency = 8
	// bodyPreviewLimit truncates message bodies in notification text.
	bodyPreviewLimit = 100
)

// DeliveryReport aggregates the per-recipient outcomes of one dispatch.
// Partial failure is a normal result, never an error.
type DeliveryReport struct {
	Attempted int `json:"attempted"`
	Delivered int `json:"delivered"`
	Stale     int `json:"stale"`
	Failed    int `json:"failed"`
}

// BroadcastEvent is the payload for audience-wide announcements such as
// a newly listed venue or event.
type BroadcastEvent struct {
	Title string
	Body  string
	Data  map[string]interface{}
}

// Dispatcher translates domain events into push notifications. Every
// operation is safe with zero resolvable recipients and never surfaces
// a delivery failure to its caller.
type Dispatcher interface {
	NotifyDirectMessage(ctx context.Context, senderID, receiverID, body string, messageID uint)
	NotifyGroupMessage(ctx context.Context, senderID string, groupID uint, body string, messageID uint) DeliveryReport
	NotifyBroadcast(ctx context.Context, event BroadcastEvent, audienceTokens []string) DeliveryReport
	NotifyFriendRequest(ctx context.Context, fromUserID, toUserID string)
	NotifyFriendRequestAccepted(ctx context.Context, byUserID, toUserID string)
	NotifyAddedToGroup(ctx context.Context, userID string, groupID uint, groupName, actorID string)
	NotifyBookingStatusChanged(ctx context.Context, userID string, bookingID, venueID uint, status string)
}

type dispatcher struct {
	devices       DeviceRegistry
	groups        repository.GroupRepository
	social        repository.SocialRepository
	notifications repository.NotificationRepository
	gateway       push.Gateway
	redis         *redis.Client
	redisChannel  string
	nats          *nats.Conn
	natsSubject   string
	logger        zerolog.Logger
	tracer        trace.Tracer
	nodeID        string
}

type recipient struct {
	userID string
	token  string
}

type dispatchEvent struct {
	Source     string    `json:"source"`
	Type       string    `json:"type"`
	Recipients int       `json:"recipients"`
	SentAt     time.Time `json:"sent_at"`
}

// NewDispatcher constructs the notification dispatcher. Redis and NATS
// connections are optional; when present, every dispatch is also
// announced on the configured channel/subject for other Sortie
// subsystems.
func NewDispatcher(
	devices DeviceRegistry,
	groups repository.GroupRepository,
	social repository.SocialRepository,
	notifications repository.NotificationRepository,
	gateway push.Gateway,
	redisClient *redis.Client,
	channelBase string,
	natsConn *nats.Conn,
	logger zerolog.Logger,
) Dispatcher {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":notifications"
		subject = channelBase + ".notifications"
	}

	return &dispatcher{
		devices:       devices,
		groups:        groups,
		social:        social,
		notifications: notifications,
		gateway:       gateway,
		redis:         redisClient,
		redisChannel:  channel,
		nats:          natsConn,
		natsSubject:   subject,
		logger:        logger.With().Str("component", "dispatcher").Logger(),
		tracer:        otel.Tracer("github.com/sortie-social/sortie-api/internal/service/dispatcher"),
		nodeID:        uuid.NewString(),
	}
}

func (d *dispatcher) NotifyDirectMessage(ctx context.Context, senderID, receiverID, body string, messageID uint) {
	token, found := d.resolveSingle(ctx, receiverID)

	senderName := d.displayName(ctx, senderID)
	note := push.Notification{
		Title: "New Message",
		Body:  fmt.Sprintf("%s: %s", senderName, preview(body)),
	}
	data := push.StringifyData(map[string]interface{}{
		"type":        "direct_message",
		"message_id":  messageID,
		"sender_id":   senderID,
		"sender_name": senderName,
	})

	d.persist(ctx, "direct_message", note, data, receiverID)
	if !found {
		return
	}
	d.fanOut(ctx, "direct_message", note, data, []recipient{{userID: receiverID, token: token}})
}

// NotifyGroupMessage fans the message out to every current member
// except the sender. Delivery is attempted individually per token;
// failures are counted, not propagated.
func (d *dispatcher) NotifyGroupMessage(ctx context.Context, senderID string, groupID uint, body string, messageID uint) DeliveryReport {
	ctx, span := d.tracer.Start(ctx, "dispatch.group_message", trace.WithAttributes(
		attribute.Int("group_id", int(groupID)),
		attribute.String("sender_id", senderID),
	))
	defer span.End()

	group, err := d.groups.FindByID(ctx, groupID)
	if err != nil {
		span.RecordError(err)
		d.logger.Warn().Err(err).Uint("group_id", groupID).Msg("failed to load group for dispatch")
		return DeliveryReport{}
	}

	members, err := d.groups.ListMembers(ctx, groupID)
	if err != nil {
		span.RecordError(err)
		d.logger.Warn().Err(err).Uint("group_id", groupID).Msg("failed to resolve group members")
		return DeliveryReport{}
	}

	audience := make([]string, 0, len(members))
	for _, member := range members {
		if member.UserID == senderID {
			continue
		}
		audience = append(audience, member.UserID)
	}

	senderName := d.displayName(ctx, senderID)
	note := push.Notification{
		Title: group.Name,
		Body:  fmt.Sprintf("%s: %s", senderName, preview(body)),
	}
	data := push.StringifyData(map[string]interface{}{
		"type":        "group_message",
		"message_id":  messageID,
		"group_id":    groupID,
		"sender_id":   senderID,
		"sender_name": senderName,
	})

	d.persist(ctx, "group_message", note, data, audience...)

	tokens, err := d.devices.ResolveBatch(ctx, audience)
	if err != nil {
		span.RecordError(err)
		d.logger.Warn().Err(err).Uint("group_id", groupID).Msg("failed to resolve member tokens")
		return DeliveryReport{}
	}
	if len(tokens) == 0 {
		return DeliveryReport{}
	}

	recipients := make([]recipient, 0, len(tokens))
	for userID, token := range tokens {
		recipients = append(recipients, recipient{userID: userID, token: token})
	}

	return d.fanOut(ctx, "group_message", note, data, recipients)
}

// NotifyBroadcast delivers an announcement to at most broadcastCap
// tokens. A larger audience is truncated; callers must not assume
// full-audience delivery.
func (d *dispatcher) NotifyBroadcast(ctx context.Context, event BroadcastEvent, audienceTokens []string) DeliveryReport {
	if len(audienceTokens) == 0 {
		return DeliveryReport{}
	}
	if len(audienceTokens) > broadcastCap {
		observability.BroadcastTruncated().Inc()
		d.logger.Warn().
			Int("audience", len(audienceTokens)).
			Int("cap", broadcastCap).
			Msg("broadcast audience truncated to delivery cap")
		audienceTokens = audienceTokens[:broadcastCap]
	}

	note := push.Notification{Title: event.Title, Body: preview(event.Body)}
	data := push.StringifyData(event.Data)

	recipients := make([]recipient, 0, len(audienceTokens))
	for _, token := range audienceTokens {
		recipients = append(recipients, recipient{token: token})
	}

	return d.fanOut(ctx, "broadcast", note, data, recipients)
}

func (d *dispatcher) NotifyFriendRequest(ctx context.Context, fromUserID, toUserID string) {
	name := d.displayName(ctx, fromUserID)
	d.notifySingle(ctx, "friend_request", toUserID, push.Notification{
		Title: "Friend Request",
		Body:  fmt.Sprintf("%s sent you a friend request", name),
	}, map[string]interface{}{
		"type":        "friend_request",
		"sender_id":   fromUserID,
		"sender_name": name,
	})
}

func (d *dispatcher) NotifyFriendRequestAccepted(ctx context.Context, byUserID, toUserID string) {
	name := d.displayName(ctx, byUserID)
	d.notifySingle(ctx, "friend_request_accepted", toUserID, push.Notification{
		Title: "Friend Request Accepted",
		Body:  fmt.Sprintf("%s accepted your friend request", name),
	}, map[string]interface{}{
		"type":        "friend_request_accepted",
		"sender_id":   byUserID,
		"sender_name": name,
	})
}

func (d *dispatcher) NotifyAddedToGroup(ctx context.Context, userID string, groupID uint, groupName, actorID string) {
	name := d.displayName(ctx, actorID)
	d.notifySingle(ctx, "group_added", userID, push.Notification{
		Title: "Added to Group",
		Body:  fmt.Sprintf("%s added you to %s", name, groupName),
	}, map[string]interface{}{
		"type":     "group_added",
		"group_id": groupID,
		"actor_id": actorID,
	})
}

func (d *dispatcher) NotifyBookingStatusChanged(ctx context.Context, userID string, bookingID, venueID uint, status string) {
	venueName, err := d.social.VenueName(ctx, venueID)
	if err != nil || venueName == "" {
		venueName = "the venue"
	}
	d.notifySingle(ctx, "booking_status", userID, push.Notification{
		Title: "Booking Update",
		Body:  fmt.Sprintf("Your booking at %s is now %s", venueName, status),
	}, map[string]interface{}{
		"type":       "booking_status",
		"booking_id": bookingID,
		"venue_id":   venueID,
		"status":     status,
	})
}

// notifySingle renders and delivers an event addressed to exactly one
// user, skipping silently when no token is registered.
func (d *dispatcher) notifySingle(ctx context.Context, typ, userID string, note push.Notification, payload map[string]interface{}) {
	data := push.StringifyData(payload)
	d.persist(ctx, typ, note, data, userID)

	token, found := d.resolveSingle(ctx, userID)
	if !found {
		return
	}
	d.fanOut(ctx, typ, note, data, []recipient{{userID: userID, token: token}})
}

// fanOut attempts delivery to every recipient concurrently, bounded by
// fanoutConcurrency so one slow push never serializes the rest.
func (d *dispatcher) fanOut(ctx context.Context, typ string, note push.Notification, data map[string]string, recipients []recipient) DeliveryReport {
	if d.gateway == nil || len(recipients) == 0 {
		return DeliveryReport{}
	}

	start := time.Now()
	defer func() {
		observability.PushFanoutLatency().Observe(time.Since(start).Seconds())
	}()

	var (
		mu     sync.Mutex
		report = DeliveryReport{Attempted: len(recipients)}
		wg     sync.WaitGroup
		sem    = make(chan struct{}, fanoutConcurrency)
	)

	for _, target := range recipients {
		wg.Add(1)
		sem <- struct{}{}
		go func(target recipient) {
			defer func() {
				<-sem
				wg.Done()
			}()

			outcome := d.deliver(ctx, typ, target, note, data)

			mu.Lock()
			switch outcome {
			case push.Delivered:
				report.Delivered++
			case push.TokenInvalid:
				report.Stale++
			default:
				report.Failed++
			}
			mu.Unlock()
		}(target)
	}
	wg.Wait()

	d.publishEvent(ctx, typ, len(recipients))

	d.logger.Debug().
		Str("type", typ).
		Int("attempted", report.Attempted).
		Int("delivered", report.Delivered).
		Int("stale", report.Stale).
		Int("failed", report.Failed).
		Msg("dispatch completed")

	return report
}

func (d *dispatcher) deliver(ctx context.Context, typ string, target recipient, note push.Notification, data map[string]string) push.Outcome {
	outcome, err := d.gateway.Send(ctx, target.token, note, data)
	observability.NotificationsPushed().WithLabelValues(typ, outcome.String()).Inc()

	switch outcome {
	case push.TokenInvalid:
		d.logger.Info().Str("user_id", target.userID).Msg("push gateway reported stale token")
		if target.userID != "" {
			if evictErr := d.devices.Evict(ctx, target.userID, target.token); evictErr != nil {
				d.logger.Warn().Err(evictErr).Str("user_id", target.userID).Msg("failed to evict stale token")
			}
		}
	case push.TransientFailure:
		d.logger.Warn().Err(err).Str("user_id", target.userID).Str("type", typ).Msg("push delivery failed")
	}

	return outcome
}

// persist writes the in-app notification rows for the event. Failures
// are logged; the push attempt proceeds regardless.
func (d *dispatcher) persist(ctx context.Context, typ string, note push.Notification, data map[string]string, userIDs ...string) {
	if d.notifications == nil || len(userIDs) == 0 {
		return
	}

	payload := datatypes.JSONMap{}
	for key, value := range data {
		payload[key] = value
	}

	rows := make([]models.Notification, 0, len(userIDs))
	for _, userID := range userIDs {
		rows = append(rows, models.Notification{
			UserID:  userID,
			Type:    typ,
			Title:   note.Title,
			Message: note.Body,
			Payload: payload,
		})
	}

	if err := d.notifications.CreateBatch(ctx, rows); err != nil {
		d.logger.Warn().Err(err).Str("type", typ).Msg("failed to persist in-app notifications")
	}
}

func (d *dispatcher) publishEvent(ctx context.Context, typ string, recipients int) {
	if d.redis == nil && d.nats == nil {
		return
	}

	event := dispatchEvent{
		Source:     d.nodeID,
		Type:       typ,
		Recipients: recipients,
		SentAt:     time.Now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		d.logger.Warn().Err(err).Msg("failed to marshal dispatch event")
		return
	}

	if d.redis != nil && d.redisChannel != "" {
		if err := d.redis.Publish(ctx, d.redisChannel, payload).Err(); err != nil {
			d.logger.Warn().Err(err).Msg("failed to publish dispatch event to redis")
		}
	}
	if d.nats != nil && d.natsSubject != "" {
		if err := d.nats.Publish(d.natsSubject, payload); err != nil {
			d.logger.Warn().Err(err).Msg("failed to publish dispatch event to nats")
		}
	}
}

func (d *dispatcher) resolveSingle(ctx context.Context, userID string) (string, bool) {
	token, found, err := d.devices.Resolve(ctx, userID)
	if err != nil {
		d.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to resolve device token")
		return "", false
	}
	return token, found
}

func (d *dispatcher) displayName(ctx context.Context, userID string) string {
	name, err := d.social.DisplayName(ctx, userID)
	if err != nil || name == "" {
		return userID
	}
	return name
}

func preview(body string) string {
	runes := []rune(body)
	if len(runes) <= bodyPreviewLimit {
		return body
	}
	return string(runes[:bodyPreviewLimit-3]) + "..."
}
