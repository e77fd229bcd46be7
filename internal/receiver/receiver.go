// Package receiver is the device side of the broadcast channel: it filters
// new-request broadcasts against the local donor profile and materializes a
// notification at most once per request.
package receiver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/farhanpavel/cognit-api/internal/eligibility"
	"github.com/farhanpavel/cognit-api/internal/models"
	"github.com/farhanpavel/cognit-api/internal/notification"
	"github.com/farhanpavel/cognit-api/internal/notification/transport"
)

// ProfileSource supplies the donor profile current at evaluation time.
type ProfileSource interface {
	CurrentProfile(ctx context.Context) (models.DonorProfile, error)
}

// StaticProfile is a ProfileSource that never changes.
type StaticProfile models.DonorProfile

// CurrentProfile implements ProfileSource.
func (p StaticProfile) CurrentProfile(context.Context) (models.DonorProfile, error) {
	return models.DonorProfile(p), nil
}

// Notifier surfaces a materialized notification to the donor.
type Notifier interface {
	Notify(ctx context.Context, n DonorNotification) error
}

// DonorNotification is what a donor sees for an eligible request.
type DonorNotification struct {
	RequestID  string                 `json:"requestId"`
	Title      string                 `json:"title"`
	Body       string                 `json:"body"`
	DeepLink   string                 `json:"deepLink"`
	DistanceKm float64                `json:"distanceKm"`
	Snapshot   models.RequestSnapshot `json:"snapshot"`
	ReceivedAt time.Time              `json:"receivedAt"`
}

// Config tunes a Receiver.
type Config struct {
	Channel   string
	InboxSize int
}

// Receiver evaluates broadcasts for one donor device.
type Receiver struct {
	filter   *eligibility.Filter
	profiles ProfileSource
	notifier Notifier
	logger   *zap.Logger
	channel  string
	inbox    *inbox
}

// New constructs a Receiver. notifier may be nil when callers only use Handle.
func New(filter *eligibility.Filter, profiles ProfileSource, notifier Notifier, logger *zap.Logger, cfg Config) *Receiver {
	if filter == nil {
		filter = eligibility.NewFilter(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Channel == "" {
		cfg.Channel = notification.DefaultChannels().Broadcast
	}
	return &Receiver{
		filter:   filter,
		profiles: profiles,
		notifier: notifier,
		logger:   logger,
		channel:  cfg.Channel,
		inbox:    newInbox(cfg.InboxSize),
	}
}

// Run subscribes to the broadcast channel and handles payloads until ctx is
// cancelled.
func (r *Receiver) Run(ctx context.Context, sub transport.Subscriber) error {
	r.logger.Info("listening for donation requests", zap.String("channel", r.channel))
	return sub.Subscribe(ctx, r.channel, func(payload []byte) {
		n, err := r.Handle(ctx, payload)
		if err != nil {
			r.logger.Warn("broadcast ignored", zap.Error(err))
			return
		}
		if n == nil || r.notifier == nil {
			return
		}
		if err := r.notifier.Notify(ctx, *n); err != nil {
			r.logger.Error("notify donor failed", zap.String("request_id", n.RequestID), zap.Error(err))
		}
	})
}

// Handle decodes one broadcast payload. It returns the notification to show,
// or nil when the request is not for this donor or was already shown.
func (r *Receiver) Handle(ctx context.Context, payload []byte) (*DonorNotification, error) {
	var msg notification.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("decode broadcast: %w", err)
	}
	if msg.Kind != notification.EventRequestCreated || msg.Snapshot == nil {
		return nil, nil
	}
	snapshot := *msg.Snapshot
	if r.inbox.Seen(snapshot.RequestID) {
		r.logger.Debug("duplicate broadcast", zap.String("request_id", snapshot.RequestID), zap.String("message_id", msg.ID))
		return nil, nil
	}

	self, err := r.profiles.CurrentProfile(ctx)
	if err != nil {
		return nil, fmt.Errorf("load donor profile: %w", err)
	}
	decision := r.filter.Evaluate(snapshot, self)
	if !decision.Eligible {
		r.logger.Debug("broadcast filtered",
			zap.String("request_id", snapshot.RequestID),
			zap.String("reason", string(decision.Reason)),
		)
		return nil, nil
	}

	n := DonorNotification{
		RequestID:  snapshot.RequestID,
		Title:      "Blood request near you",
		Body:       fmt.Sprintf("%s blood needed at %s, %.1f km away.", snapshot.BloodGroupName, snapshot.HospitalName, decision.DistanceKm),
		DeepLink:   msg.DeepLink,
		DistanceKm: decision.DistanceKm,
		Snapshot:   snapshot,
		ReceivedAt: time.Now().UTC(),
	}
	if !r.inbox.Add(n) {
		return nil, nil
	}
	return &n, nil
}

// Inbox returns materialized notifications, newest first.
func (r *Receiver) Inbox() []DonorNotification {
	return r.inbox.List()
}

// LogNotifier writes notifications to a zap logger.
type LogNotifier struct {
	Logger *zap.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, dn DonorNotification) error {
	n.Logger.Info(dn.Title,
		zap.String("body", dn.Body),
		zap.String("request_id", dn.RequestID),
		zap.String("deep_link", dn.DeepLink),
		zap.Float64("distance_km", dn.DistanceKm),
	)
	return nil
}
