package logger_test

import (
	"testing"

	"github.com/dailyyoga/cronkit/cron"
	"github.com/dailyyoga/cronkit/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DecodeFromYAML(t *testing.T) {
	props, err := cron.ParseProperties([]byte(`
level: debug
output_paths: stderr,/var/log/crond.log
`))
	require.NoError(t, err)

	cfg := logger.DefaultConfig()
	require.NoError(t, props.Decode(cfg, nil))

	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, "json", cfg.Encoding, "absent keys keep their defaults")
	assert.Equal(t, []string{"stderr", "/var/log/crond.log"}, cfg.OutputPaths)
	assert.Equal(t, []string{"stderr"}, cfg.ErrorOutputPaths)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     logger.Config
		wantErr bool
	}{
		{"defaults", *logger.DefaultConfig(), false},
		{"console", logger.Config{Level: "warn", Encoding: "console"}, false},
		{"unknown level", logger.Config{Level: "verbose", Encoding: "json"}, true},
		{"empty level", logger.Config{Encoding: "json"}, true},
		{"unknown encoding", logger.Config{Level: "info", Encoding: "logfmt"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, logger.ErrInvalidConfig)
				return
			}
			assert.NoError(t, err)
		})
	}
}
