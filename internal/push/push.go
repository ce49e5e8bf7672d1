// Package push implements the DAV-Push notifier (spec.md §4.8): per-topic
// subscription registration, a coalescing dispatcher that batches rapid
// successive changes into one delivery, Web Push message encryption
// (RFC 8291 aes128gcm), and bounded delivery retry.
package push

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/hkdf"

	"github.com/hearthdav/caldavd/internal/config"
	"github.com/hearthdav/caldavd/internal/model"
	"github.com/hearthdav/caldavd/internal/store"
)

// CollectionOperation is the payload pushed to a subscriber: the resource's
// push topic and the sync-token the collection now holds, exactly the
// tuple spec.md §4.8 says a subscriber needs to issue its own
// sync-collection REPORT.
type CollectionOperation struct {
	Topic     string
	SyncToken int64
}

// DropCounter is satisfied by internal/metrics; Dispatcher calls it once
// per delivery it abandons: when encryption fails or the retry budget is
// exhausted.
type DropCounter interface {
	IncPushDropped(reason string)
}

// Dispatcher coalesces collection-change notifications per topic over a
// short window before delivering a single Web Push message per subscriber,
// so a burst of PUTs against one calendar doesn't fan out into one push per
// object (spec.md §4.8 "coalesce window").
type Dispatcher struct {
	store   store.Store
	cfg     config.PushConfig
	logger  zerolog.Logger
	client  *http.Client
	metrics DropCounter

	mu      sync.Mutex
	pending map[string]int64 // topic -> highest pending sync token
	timer   *time.Timer
}

func NewDispatcher(s store.Store, cfg config.PushConfig, logger zerolog.Logger, metrics DropCounter) *Dispatcher {
	return &Dispatcher{
		store:   s,
		cfg:     cfg,
		logger:  logger,
		client:  &http.Client{Timeout: cfg.DeliveryTimeout},
		metrics: metrics,
		pending: map[string]int64{},
	}
}

// NotifyCollectionChanged implements internal/syncengine.Notifier. It
// records topic's new token and arms (or re-arms) the coalescing timer;
// the first call in a quiet period schedules the flush, later calls within
// the window just raise the recorded token.
func (d *Dispatcher) NotifyCollectionChanged(topic string, syncToken int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cur, ok := d.pending[topic]; !ok || syncToken > cur {
		d.pending[topic] = syncToken
	}
	if d.timer == nil {
		d.timer = time.AfterFunc(d.cfg.CoalesceWindow, d.flush)
	}
}

func (d *Dispatcher) flush() {
	d.mu.Lock()
	batch := d.pending
	d.pending = map[string]int64{}
	d.timer = nil
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.DeliveryTimeout)
	defer cancel()

	for topic, token := range batch {
		subs, err := d.store.ListSubscriptionsByTopic(ctx, topic)
		if err != nil {
			d.logger.Error().Err(err).Str("topic", topic).Msg("push: failed to list subscriptions")
			continue
		}
		for _, sub := range subs {
			d.deliver(ctx, sub, CollectionOperation{Topic: topic, SyncToken: token})
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, sub *model.Subscription, op CollectionOperation) {
	payload, err := encryptPayload(sub, []byte(fmt.Sprintf(`{"topic":%q,"sync-token":%d}`, op.Topic, op.SyncToken)))
	if err != nil {
		d.logger.Warn().Err(err).Str("subscription", sub.ID).Msg("push: encryption failed")
		d.drop("encrypt")
		return
	}

	var lastErr error
	for attempt := 0; attempt <= d.cfg.MaxDeliveryTries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.PushEndpoint, bytes.NewReader(payload))
		if err != nil {
			lastErr = err
			break
		}
		req.Header.Set("Content-Type", "application/octet-stream")
		req.Header.Set("Content-Encoding", sub.ContentEncoding)
		req.Header.Set("TTL", "86400")

		resp, err := d.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		if resp.StatusCode < 300 {
			return
		}
		if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
			_ = d.store.RemoveSubscription(ctx, sub.ID)
			return
		}
		lastErr = fmt.Errorf("push: endpoint returned %d", resp.StatusCode)
	}
	d.logger.Warn().Err(lastErr).Str("subscription", sub.ID).Msg("push: delivery exhausted retries")
	d.drop("delivery-failed")
}

func (d *Dispatcher) drop(reason string) {
	if d.metrics != nil {
		d.metrics.IncPushDropped(reason)
	}
}

// encryptPayload implements RFC 8291 Web Push message encryption
// (aes128gcm): an ephemeral P-256 key agreement with the subscriber's
// PublicKey, HKDF-derived content-encryption and nonce keys salted with a
// fresh random salt and the subscriber's AuthSecret, and single-record
// AES-128-GCM encryption with an 0x02 padding-delimiter byte appended to
// the plaintext.
func encryptPayload(sub *model.Subscription, plaintext []byte) ([]byte, error) {
	curve := ecdh.P256()
	subscriberKey, err := curve.NewPublicKey(sub.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("push: invalid subscriber key: %w", err)
	}
	serverPriv, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	shared, err := serverPriv.ECDH(subscriberKey)
	if err != nil {
		return nil, err
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}

	prkInfo := append([]byte("WebPush: info\x00"), sub.PublicKey...)
	prkInfo = append(prkInfo, serverPriv.PublicKey().Bytes()...)
	prk := hkdfExtractExpand(sub.AuthSecret, shared, prkInfo, 32)

	cek := hkdfExtractExpand(salt, prk, []byte("Content-Encoding: aes128gcm\x00"), 16)
	nonce := hkdfExtractExpand(salt, prk, []byte("Content-Encoding: nonce\x00"), 12)

	block, err := aes.NewCipher(cek)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	padded := append(append([]byte{}, plaintext...), 0x02)
	ciphertext := gcm.Seal(nil, nonce, padded, nil)

	// aes128gcm header: salt(16) || record size(4, big-endian) || key id
	// length(1) || key id (server's uncompressed public key).
	pub := serverPriv.PublicKey().Bytes()
	header := make([]byte, 0, 16+4+1+len(pub))
	header = append(header, salt...)
	recordSize := make([]byte, 4)
	binary.BigEndian.PutUint32(recordSize, uint32(4096))
	header = append(header, recordSize...)
	header = append(header, byte(len(pub)))
	header = append(header, pub...)

	return append(header, ciphertext...), nil
}

func hkdfExtractExpand(salt, ikm, info []byte, length int) []byte {
	r := hkdf.New(sha256.New, ikm, salt, info)
	out := make([]byte, length)
	if _, err := r.Read(out); err != nil {
		panic(err) // hkdf.Read only fails when length exceeds 255*hashSize, never true here
	}
	return out
}
