package push

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// FCMGateway delivers notifications through Firebase Cloud Messaging.
type FCMGateway struct {
	client *messaging.Client
	logger zerolog.Logger
}

// NewFCMGateway initialises the Firebase app from the given credentials
// file (or application-default credentials when empty) and returns a
// Gateway backed by it.
func NewFCMGateway(ctx context.Context, credentialsFile string, logger zerolog.Logger) (*FCMGateway, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create messaging client: %w", err)
	}

	return &FCMGateway{
		client: client,
		logger: logger.With().Str("component", "fcm_gateway").Logger(),
	}, nil
}

// Send pushes one message to one token and classifies the result.
func (g *FCMGateway) Send(ctx context.Context, token string, notification Notification, data map[string]string) (Outcome, error) {
	message := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: notification.Title,
			Body:  notification.Body,
		},
		Data: data,
	}

	if _, err := g.client.Send(ctx, message); err != nil {
		if messaging.IsUnregistered(err) || messaging.IsInvalidArgument(err) {
			return TokenInvalid, err
		}
		return TransientFailure, err
	}

	return Delivered, nil
}
