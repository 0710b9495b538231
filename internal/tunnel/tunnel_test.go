package tunnel

import (
	"context"
	"io"
	"testing"

	"tunedeck/internal/config"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func noEnv(string) (string, bool) { return "", false }

func TestNewServiceDisabled(t *testing.T) {
	svc, err := NewService(config.TunnelConfig{}, noEnv, nil, quietLogger())
	require.NoError(t, err)
	assert.Nil(t, svc)

	// A disabled tunnel is a nil service and every call is a no-op.
	assert.NoError(t, svc.Start(context.Background(), "127.0.0.1:8080"))
	assert.Equal(t, "", svc.PublicURL())
	assert.NoError(t, svc.Stop())
}

func TestNewServiceMissingToken(t *testing.T) {
	_, err := NewService(config.TunnelConfig{Enabled: true}, noEnv, nil, quietLogger())
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestOAuthPolicy(t *testing.T) {
	policy := oauthPolicy("github")
	assert.Contains(t, policy, "on_http_request:")
	assert.Contains(t, policy, "type: oauth")
	assert.Contains(t, policy, "provider: github")
}

func TestUpstreamURL(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"127.0.0.1:8080", "http://127.0.0.1:8080"},
		{"0.0.0.0:8080", "http://127.0.0.1:8080"},
		{":9000", "http://127.0.0.1:9000"},
		{"[::]:8080", "http://127.0.0.1:8080"},
		{"music.lan:8080", "http://music.lan:8080"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, upstreamURL(tt.addr), tt.addr)
	}
}
