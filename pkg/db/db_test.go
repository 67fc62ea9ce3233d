package db

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr string
	}{
		{name: "defaults", cfg: DefaultConfig("postgres://recap@localhost/recap")},
		{name: "missing url", cfg: DefaultConfig(""), wantErr: "database url is required"},
		{
			name:    "min above max",
			cfg:     &Config{URL: "postgres://x", MaxConns: 1, MinConns: 2},
			wantErr: "max connections",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConnect_InvalidConfig(t *testing.T) {
	_, err := Connect(context.Background(), DefaultConfig(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestChecker_NilPool(t *testing.T) {
	c := Checker{}
	assert.Equal(t, "postgres", c.Name())
	assert.EqualError(t, c.Ping(context.Background()), "pool is nil")
}

func TestRegisterPoolStats_Twice(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterPoolStats(reg, nil, "recap"))
	require.NoError(t, RegisterPoolStats(reg, nil, "recap"))
}
