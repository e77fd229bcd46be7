package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu       sync.Mutex
	channels []string
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append(p.channels, channel)
	return p.err
}

func TestBrokerDeliversOnlyToChannelSubscribers(t *testing.T) {
	b := NewBroker(4)
	statusCh, cancelStatus := b.Open("request-status-1")
	defer cancelStatus()
	otherCh, cancelOther := b.Open("request-status-2")
	defer cancelOther()

	require.NoError(t, b.Publish(context.Background(), "request-status-1", []byte("hello")))

	select {
	case msg := <-statusCh:
		assert.Equal(t, "hello", string(msg))
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive message")
	}
	select {
	case <-otherCh:
		t.Fatal("unrelated subscriber received message")
	default:
	}
}

func TestBrokerDropsForSlowSubscriber(t *testing.T) {
	b := NewBroker(1)
	ch, cancel := b.Open("c")
	defer cancel()

	require.NoError(t, b.Publish(context.Background(), "c", []byte("1")))
	require.NoError(t, b.Publish(context.Background(), "c", []byte("2")))

	assert.Equal(t, "1", string(<-ch))
	select {
	case <-ch:
		t.Fatal("expected overflow message to be dropped")
	default:
	}
}

func TestBrokerCancelReleasesSubscription(t *testing.T) {
	b := NewBroker(1)
	_, cancel := b.Open("c")
	assert.Equal(t, 1, b.Subscribers("c"))
	cancel()
	cancel()
	assert.Zero(t, b.Subscribers("c"))
	require.NoError(t, b.Publish(context.Background(), "c", []byte("after")))
}

func TestBrokerSubscribeStopsOnCancel(t *testing.T) {
	b := NewBroker(4)
	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan string, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.Subscribe(ctx, "new-request", func(p []byte) { got <- string(p) })
	}()

	require.Eventually(t, func() bool { return b.Subscribers("new-request") == 1 }, time.Second, time.Millisecond)
	require.NoError(t, b.Publish(context.Background(), "new-request", []byte("req")))
	assert.Equal(t, "req", <-got)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("subscribe did not return after cancel")
	}
	assert.Zero(t, b.Subscribers("new-request"))
}

func TestFanoutPublishesToAllAndJoinsErrors(t *testing.T) {
	ok := &recordingPublisher{}
	failing := &recordingPublisher{err: errors.New("down")}
	f := Fanout{ok, nil, failing}

	err := f.Publish(context.Background(), "new-request", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
	assert.Equal(t, []string{"new-request"}, ok.channels)
	assert.Equal(t, []string{"new-request"}, failing.channels)

	assert.NoError(t, Fanout{ok}.Publish(context.Background(), "c", nil))
}
