// Command donor-agent runs the device side of the broadcast channel for a
// single donor profile and logs the notifications it would surface.
package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/farhanpavel/cognit-api/internal/eligibility"
	"github.com/farhanpavel/cognit-api/internal/models"
	"github.com/farhanpavel/cognit-api/internal/notification/transport"
	"github.com/farhanpavel/cognit-api/internal/receiver"
	"github.com/farhanpavel/cognit-api/pkg/cache"
	"github.com/farhanpavel/cognit-api/pkg/config"
	"github.com/farhanpavel/cognit-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg.Env, cfg.Log)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := cfg.Agent.Validate(); err != nil {
		logr.Fatal("invalid donor profile", zap.Error(err))
	}
	location, _ := cfg.Agent.Location()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sub, closeSub, err := openSubscriber(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("failed to open push transport", zap.Error(err))
	}
	defer closeSub()

	profile := receiver.StaticProfile(models.DonorProfile{
		UserID:          cfg.Agent.UserID,
		BloodGroupName:  cfg.Agent.BloodGroupName,
		CurrentLocation: location,
	})
	rcv := receiver.New(
		eligibility.NewFilter(cfg.Donation.ProximityLimitKm),
		profile,
		receiver.LogNotifier{Logger: logr},
		logr,
		receiver.Config{Channel: cfg.Dispatch.BroadcastChannel, InboxSize: cfg.Agent.InboxSize},
	)

	logr.Info("donor agent starting",
		zap.String("user_id", cfg.Agent.UserID),
		zap.String("blood_group", cfg.Agent.BloodGroupName),
		zap.Float64("latitude", location.Latitude),
		zap.Float64("longitude", location.Longitude),
		zap.String("transport", cfg.Dispatch.Transport),
	)
	if err := rcv.Run(ctx, sub); err != nil {
		logr.Fatal("donor agent stopped", zap.Error(err))
	}
	logr.Info("donor agent stopped", zap.Int("notifications", len(rcv.Inbox())))
}

// groupSubscriber binds a Kafka consumer group so each agent sees every broadcast once.
type groupSubscriber struct {
	kafka   *transport.Kafka
	groupID string
}

func (g groupSubscriber) Subscribe(ctx context.Context, channel string, handle transport.Handler) error {
	return g.kafka.SubscribeGroup(ctx, channel, g.groupID, handle)
}

func openSubscriber(ctx context.Context, cfg *config.Config, logr *zap.Logger) (transport.Subscriber, func(), error) {
	switch cfg.Dispatch.Transport {
	case config.TransportNATS:
		nc, err := transport.DialNATS(cfg.NATS.URL, cfg.NATS.Name+"-donor-"+cfg.Agent.UserID, logr)
		if err != nil {
			return nil, nil, err
		}
		return nc, func() { _ = nc.Close() }, nil
	case config.TransportRedis:
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return transport.NewRedis(client, logr), func() { _ = client.Close() }, nil
	case config.TransportKafka:
		k := transport.NewKafka(cfg.Kafka.Brokers, logr)
		return groupSubscriber{kafka: k, groupID: "donor-" + cfg.Agent.UserID}, func() { _ = k.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("transport %q cannot reach the api from a separate process", cfg.Dispatch.Transport)
	}
}
