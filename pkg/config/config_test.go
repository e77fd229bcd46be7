package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, StoreDriverPostgres, cfg.Store.Driver)
	assert.Equal(t, 30.0, cfg.Donation.ProximityLimitKm)
	assert.Equal(t, 24*time.Hour, cfg.Donation.DefaultSessionTTL)
	assert.Equal(t, "new-request", cfg.Dispatch.BroadcastChannel)
	assert.Equal(t, "request-status-", cfg.Dispatch.StatusChannelPrefix)
	assert.Equal(t, TransportMemory, cfg.Dispatch.Transport)
	assert.Equal(t, 500*time.Millisecond, cfg.Dispatch.RetryDelay)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PROXIMITY_LIMIT_KM", "12.5")
	t.Setenv("DISPATCH_TRANSPORT", "NATS")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("DISPATCH_RETRY_DELAY", "not-a-duration")
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 12.5, cfg.Donation.ProximityLimitKm)
	assert.Equal(t, TransportNATS, cfg.Dispatch.Transport)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 500*time.Millisecond, cfg.Dispatch.RetryDelay)
	assert.Equal(t, StoreDriverMemory, cfg.Store.Driver)
}

func TestAgentLocationHasNoDefault(t *testing.T) {
	t.Setenv("DONOR_USER_ID", "donor-1")
	t.Setenv("DONOR_BLOOD_GROUP", "O+")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.Agent.Latitude)
	assert.ErrorContains(t, cfg.Agent.Validate(), "DONOR_LATITUDE and DONOR_LONGITUDE are required")
}

func TestAgentLocationFromEnvironment(t *testing.T) {
	t.Setenv("DONOR_USER_ID", "donor-1")
	t.Setenv("DONOR_BLOOD_GROUP", "O+")
	t.Setenv("DONOR_LATITUDE", "0")
	t.Setenv("DONOR_LONGITUDE", " 0 ")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Agent.Validate())
	loc, err := cfg.Agent.Location()
	require.NoError(t, err)
	assert.Zero(t, loc.Latitude)
	assert.Zero(t, loc.Longitude)
}

func TestAgentValidate(t *testing.T) {
	cases := []struct {
		name  string
		agent AgentConfig
		err   string
	}{
		{"missing user", AgentConfig{BloodGroupName: "O+", Latitude: "23.7", Longitude: "90.4"}, "DONOR_USER_ID"},
		{"missing longitude", AgentConfig{UserID: "d", BloodGroupName: "O+", Latitude: "23.7"}, "DONOR_LONGITUDE are required"},
		{"garbage latitude", AgentConfig{UserID: "d", BloodGroupName: "O+", Latitude: "north", Longitude: "90.4"}, "parse DONOR_LATITUDE"},
		{"out of range", AgentConfig{UserID: "d", BloodGroupName: "O+", Latitude: "91", Longitude: "90.4"}, "out of range"},
		{"valid", AgentConfig{UserID: "d", BloodGroupName: "O+", Latitude: "23.7", Longitude: "90.4"}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.agent.Validate()
			if tc.err == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tc.err)
		})
	}
}
