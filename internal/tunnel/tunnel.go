// Package tunnel exposes the local server through an ngrok endpoint.
package tunnel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"tunedeck/internal/config"
	"tunedeck/internal/notify"

	"github.com/sirupsen/logrus"
	"golang.ngrok.com/ngrok/v2"
)

// ErrMissingToken is returned when neither the config nor NGROK_AUTHTOKEN
// carries an auth token.
var ErrMissingToken = errors.New("ngrok auth token not found")

// Service owns the ngrok agent and the endpoint forwarding to the server.
type Service struct {
	cfg      config.TunnelConfig
	agent    ngrok.Agent
	notifier notify.Sink
	logger   *logrus.Logger

	mu        sync.Mutex
	forwarder ngrok.EndpointForwarder
}

// NewService builds the tunnel service. It returns nil, nil when the tunnel
// is disabled; every method is safe on a nil *Service.
func NewService(cfg config.TunnelConfig, lookup func(string) (string, bool), notifier notify.Sink, logger *logrus.Logger) (*Service, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	token := cfg.AuthToken
	if token == "" {
		token, _ = lookup("NGROK_AUTHTOKEN")
	}
	if token == "" {
		return nil, fmt.Errorf("%w: set tunnel.auth_token or NGROK_AUTHTOKEN", ErrMissingToken)
	}

	agent, err := ngrok.NewAgent(ngrok.WithAuthtoken(token))
	if err != nil {
		return nil, fmt.Errorf("failed to create ngrok agent: %w", err)
	}
	if notifier == nil {
		notifier = notify.Discard{}
	}

	return &Service{
		cfg:      cfg,
		agent:    agent,
		notifier: notifier,
		logger:   logger,
	}, nil
}

// Start opens the endpoint and forwards its traffic to listenAddr.
func (s *Service) Start(ctx context.Context, listenAddr string) error {
	if s == nil {
		return nil
	}

	upstream := upstreamURL(listenAddr)
	s.logger.WithField("upstream", upstream).Info("Starting ngrok tunnel")

	var opts []ngrok.EndpointOption
	if s.cfg.Domain != "" {
		opts = append(opts, ngrok.WithURL(s.cfg.Domain))
	}
	if s.cfg.OAuthProvider != "" {
		opts = append(opts, ngrok.WithTrafficPolicy(oauthPolicy(s.cfg.OAuthProvider)))
	}

	fwd, err := s.agent.Forward(ctx, ngrok.WithUpstream(upstream), opts...)
	if err != nil {
		return fmt.Errorf("failed to create ngrok tunnel: %w", err)
	}

	s.mu.Lock()
	s.forwarder = fwd
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"public_url": fwd.URL().String(),
		"oauth":      s.cfg.OAuthProvider,
	}).Info("Ngrok tunnel active")
	notify.Notifyf(s.notifier, notify.Info, "Library reachable at %s", fwd.URL())
	return nil
}

// PublicURL returns the endpoint URL, or "" while no tunnel is open.
func (s *Service) PublicURL() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.forwarder == nil {
		return ""
	}
	return s.forwarder.URL().String()
}

// Stop closes the endpoint.
func (s *Service) Stop() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	fwd := s.forwarder
	s.forwarder = nil
	s.mu.Unlock()
	if fwd == nil {
		return nil
	}

	s.logger.Info("Stopping ngrok tunnel")
	return fwd.Close()
}

// oauthPolicy is the traffic policy that gates every request behind provider.
func oauthPolicy(provider string) string {
	return fmt.Sprintf(`
on_http_request:
  - actions:
      - type: oauth
        config:
          provider: %s
`, provider)
}

// upstreamURL turns a listen address into something the agent can dial.
// Wildcard hosts are forwarded to loopback.
func upstreamURL(listenAddr string) string {
	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return "http://" + listenAddr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}
