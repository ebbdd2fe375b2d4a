// Package push abstracts the external push-delivery transport. The
// dispatcher depends only on the Gateway interface; the FCM adapter in
// this package is the production implementation.
package push

import (
	"context"
	"fmt"
	"strconv"
)

// Outcome classifies a single delivery attempt.
type Outcome int

const (
	// Delivered means the gateway accepted the message for the token.
	Delivered Outcome = iota
	// TokenInvalid means the gateway reports the token as unregistered.
	// The stored token is stale and can be evicted.
	TokenInvalid
	// TransientFailure covers every other gateway failure. No retry is
	// attempted at this layer.
	TransientFailure
)

// String implements fmt.Stringer for metric labels and logs.
func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case TokenInvalid:
		return "token_invalid"
	default:
		return "transient_failure"
	}
}

// Notification is the user-visible part of a push message.
type Notification struct {
	Title string
	Body  string
}

// Gateway sends one notification to one device token. Implementations
// must accept only string-valued data payloads.
type Gateway interface {
	Send(ctx context.Context, token string, notification Notification, data map[string]string) (Outcome, error)
}

// StringifyData converts an arbitrary payload into the string-only map
// push transports accept. Nil values become empty strings.
func StringifyData(payload map[string]interface{}) map[string]string {
	if len(payload) == 0 {
		return map[string]string{}
	}

	out := make(map[string]string, len(payload))
	for key, value := range payload {
		switch v := value.(type) {
		case nil:
			out[key] = ""
		case string:
			out[key] = v
		case bool:
			out[key] = strconv.FormatBool(v)
		case int:
			out[key] = strconv.Itoa(v)
		case int64:
			out[key] = strconv.FormatInt(v, 10)
		case uint:
			out[key] = strconv.FormatUint(uint64(v), 10)
		case uint64:
			out[key] = strconv.FormatUint(v, 10)
		case float64:
			out[key] = strconv.FormatFloat(v, 'f', -1, 64)
		case fmt.Stringer:
			out[key] = v.String()
		default:
			out[key] = fmt.Sprintf("%v", v)
		}
	}
	return out
}
