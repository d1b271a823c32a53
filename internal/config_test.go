package internal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("BADGER_FILEPATH", t.TempDir())
	t.Setenv("BLUGE_FILEPATH", t.TempDir())
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
}

func TestLoadConfig_Defaults(t *testing.T) {
	req := require.New(t)
	setRequired(t)

	config, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	req.NoError(err)
	req.Equal(":8080", config.HTTPAddr)
	req.Equal(ProviderMemory, config.Provider)
	req.Equal(BlobBadger, config.BlobBackend)
	req.Equal(256, config.BufferSize)
	req.Nil(config.LimitMessages)
	req.Equal("*", config.CharReplacement)
}

func TestLoadConfig_Reads_Env_File(t *testing.T) {
	req := require.New(t)
	setRequired(t)
	file := filepath.Join(t.TempDir(), "relay.env")
	req.NoError(os.WriteFile(file, []byte("RATE_LIMIT_BURST=3\nLIMIT_MESSAGES=25\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("RATE_LIMIT_BURST")
		_ = os.Unsetenv("LIMIT_MESSAGES")
	})

	config, err := LoadConfig(file)
	req.NoError(err)
	req.Equal(3, config.RateLimitBurst)
	req.NotNil(config.LimitMessages)
	req.Equal(25, *config.LimitMessages)
}

func TestLoadConfig_Cross_Field_Rules(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"twilio without credentials", map[string]string{"CONVERSATION_PROVIDER": "twilio"}},
		{"s3 without bucket", map[string]string{"BLOB_BACKEND": "s3", "S3_ENDPOINT": "localhost:9000"}},
		{"unknown provider", map[string]string{"CONVERSATION_PROVIDER": "slack"}},
		{"short secret", map[string]string{"JWT_SECRET": "short"}},
		{"two replacement characters", map[string]string{"CHARACTER_REPLACEMENT": "**"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
			require.Error(t, err)
		})
	}
}

func TestMessageMapper(t *testing.T) {
	req := require.New(t)
	row := DefaultMapper("msg:CH1:0000001700000000000000000:6f1c2b1a-7d6e", []byte("abc"))
	req.Equal("CH1", row.Namespace)
	req.Equal("6f1c2b1a", row.EntityID)
	req.Equal("MSG", row.Type)

	row = MessageMapper("msg:CH1:0000001700000000000000000:6f1c2b1a-7d6e", []byte("not cbor"))
	req.Equal("Error: decode failed", row.Detail)
}
