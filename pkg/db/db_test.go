package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("postgres://u:p@localhost:5432/penf_live")

	assert.Equal(t, "postgres://u:p@localhost:5432/penf_live", cfg.DSN)
	assert.GreaterOrEqual(t, cfg.MaxConns, cfg.MinConns)
	require.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "missing DSN",
			cfg:     Config{},
			wantErr: "DSN is required",
		},
		{
			name:    "max below min",
			cfg:     Config{DSN: "postgres://localhost/x", MaxConns: 1, MinConns: 5},
			wantErr: "must be >=",
		},
		{
			name: "valid",
			cfg:  Config{DSN: "postgres://localhost/x", MaxConns: 5, MinConns: 1},
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
