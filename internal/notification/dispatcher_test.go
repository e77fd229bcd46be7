package notification

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farhanpavel/cognit-api/internal/models"
)

type published struct {
	channel string
	msg     Message
}

type fakePublisher struct {
	mu       sync.Mutex
	failures int
	out      chan published
}

func newFakePublisher(failures int) *fakePublisher {
	return &fakePublisher{failures: failures, out: make(chan published, 16)}
}

func (p *fakePublisher) Publish(_ context.Context, channel string, payload []byte) error {
	p.mu.Lock()
	if p.failures > 0 {
		p.failures--
		p.mu.Unlock()
		return errors.New("transport unavailable")
	}
	p.mu.Unlock()
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return err
	}
	p.out <- published{channel: channel, msg: msg}
	return nil
}

type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (r *outcomeRecorder) ObserveDispatch(_, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = map[string]int{}
	}
	r.outcomes[outcome]++
}

func (r *outcomeRecorder) count(outcome string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcomes[outcome]
}

func sampleRequest() models.DonationRequest {
	now := time.Now()
	return models.DonationRequest{
		ID:                  "req-1",
		PatientUserID:       "patient-1",
		BloodGroupName:      "A+",
		BagsNeeded:          2,
		BloodNeededBeforeAt: now.Add(24 * time.Hour),
		SessionEndAt:        now.Add(24 * time.Hour),
		HospitalName:        "Square Hospital",
		HospitalLatitude:    23.7529,
		HospitalLongitude:   90.3810,
	}
}

func waitPublished(t *testing.T, p *fakePublisher) published {
	t.Helper()
	select {
	case got := <-p.out:
		return got
	case <-time.After(2 * time.Second):
		t.Fatal("nothing published")
		return published{}
	}
}

func TestDispatcherRoutesBroadcastAndStatusChannels(t *testing.T) {
	pub := newFakePublisher(0)
	d := NewDispatcher(pub, nil, nil, DispatcherConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	req := sampleRequest()
	require.True(t, d.Emit(Event{Kind: EventRequestCreated, Request: req}))
	got := waitPublished(t, pub)
	assert.Equal(t, "new-request", got.channel)
	require.NotNil(t, got.msg.Snapshot)
	assert.Equal(t, "patient-1", got.msg.Snapshot.RequesterUserID)
	assert.Equal(t, "A+ blood needed", got.msg.Title)
	assert.Equal(t, "cognit://blood-requests/req-1", got.msg.DeepLink)

	record := &models.DonorResponseRecord{ID: "rec-1", RequestID: req.ID, DonorID: "donor-1", CanDonateBloodBagUpto: 1}
	require.True(t, d.Emit(Event{Kind: EventDonorAccepted, Request: req, Record: record}))
	got = waitPublished(t, pub)
	assert.Equal(t, "request-status-req-1", got.channel)
	assert.Equal(t, "rec-1", got.msg.RecordID)
	assert.Equal(t, "A donor can give up to 1 bag of A+.", got.msg.Body)
	assert.Nil(t, got.msg.Snapshot)
}

func TestDispatcherRetriesFailedPublish(t *testing.T) {
	pub := newFakePublisher(2)
	metrics := &outcomeRecorder{}
	d := NewDispatcher(pub, metrics, nil, DispatcherConfig{MaxRetries: 3, RetryDelay: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	d.Emit(Event{Kind: EventDonorReached, Request: sampleRequest()})
	got := waitPublished(t, pub)
	assert.Equal(t, EventDonorReached, got.msg.Kind)
	assert.Equal(t, 2, metrics.count(OutcomeRetried))
	require.Eventually(t, func() bool { return metrics.count(OutcomeDelivered) == 1 }, time.Second, time.Millisecond)
}

func TestDispatcherGivesUpAfterRetries(t *testing.T) {
	pub := newFakePublisher(100)
	metrics := &outcomeRecorder{}
	d := NewDispatcher(pub, metrics, nil, DispatcherConfig{MaxRetries: 1, RetryDelay: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	d.Emit(Event{Kind: EventDonorDismissed, Request: sampleRequest()})
	require.Eventually(t, func() bool { return metrics.count(OutcomeFailed) == 1 }, 2*time.Second, time.Millisecond)
}

func TestDispatcherEmitNeverBlocks(t *testing.T) {
	metrics := &outcomeRecorder{}
	d := NewDispatcher(newFakePublisher(0), metrics, nil, DispatcherConfig{BufferSize: 1})

	assert.True(t, d.Emit(Event{Kind: EventSessionClosed, Request: sampleRequest()}))
	assert.False(t, d.Emit(Event{Kind: EventSessionClosed, Request: sampleRequest()}))
	assert.Equal(t, int64(1), d.Dropped())
	assert.Equal(t, 1, metrics.count(OutcomeDropped))
}

func TestDispatcherRunStopsOnCancel(t *testing.T) {
	d := NewDispatcher(newFakePublisher(0), nil, nil, DispatcherConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestRenderConfirmedFulfilled(t *testing.T) {
	req := sampleRequest()
	req.BagsReceived = 2
	msg := DefaultChannels().Render("m-1", Event{Kind: EventDonationConfirmed, Request: req, OccurredAt: time.Now()})
	assert.Equal(t, models.RequestStateFulfilled, msg.RequestState)
	assert.Equal(t, "All 2 bags received. Your request is fulfilled.", msg.Body)

	req.BagsReceived = 1
	msg = DefaultChannels().Render("m-2", Event{Kind: EventDonationConfirmed, Request: req, OccurredAt: time.Now()})
	assert.Equal(t, "1 of 2 bags received.", msg.Body)
}

func TestChannelsCustomNames(t *testing.T) {
	c := Channels{Broadcast: "broadcast", StatusPrefix: "status.", DeepLinkBase: "app://r/"}.withDefaults()
	assert.Equal(t, "status.abc", c.Status("abc"))
	assert.Equal(t, "app://r/abc", c.DeepLink("abc"))
	assert.Equal(t, "broadcast", c.For(Event{Kind: EventRequestCreated}))
}
