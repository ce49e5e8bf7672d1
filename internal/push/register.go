package push

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/hearthdav/caldavd/internal/model"
	"github.com/hearthdav/caldavd/internal/store"
)

var ErrInvalidSubscription = errors.New("push: invalid subscription request")

// Registration is the decoded <push-register> request body (the
// subscription's Web Push endpoint plus its RFC 8291 keying material).
type Registration struct {
	ResourceURL     string
	PushEndpoint    string
	ContentEncoding string
	PublicKey       []byte
	AuthSecret      []byte
}

// Register validates reg and stores a new Subscription capped at the
// configured TTL (spec.md §4.8 "subscriptions expire and must be renewed").
func Register(ctx context.Context, s store.Store, reg Registration, ttl time.Duration) (*model.Subscription, error) {
	if reg.PushEndpoint == "" || len(reg.PublicKey) == 0 || len(reg.AuthSecret) == 0 {
		return nil, ErrInvalidSubscription
	}
	if reg.ContentEncoding == "" {
		reg.ContentEncoding = "aes128gcm"
	}

	id := make([]byte, 16)
	if _, err := rand.Read(id); err != nil {
		return nil, err
	}

	sub := &model.Subscription{
		ID:              base64.RawURLEncoding.EncodeToString(id),
		ResourceURL:     reg.ResourceURL,
		PushEndpoint:    reg.PushEndpoint,
		ContentEncoding: reg.ContentEncoding,
		PublicKey:       reg.PublicKey,
		AuthSecret:      reg.AuthSecret,
		ExpiresAt:       store.Now().UTC().Add(ttl),
	}
	if err := s.PutSubscription(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}
