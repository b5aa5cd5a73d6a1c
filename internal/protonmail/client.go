// Package protonmail drives the Proton Mail web client: signing in and
// sending one message per call through the composer.
package protonmail

import (
	"context"
	"fmt"
	"time"

	"github.com/hostedid/sendout/internal/auth"
	"github.com/hostedid/sendout/internal/config"
	"github.com/hostedid/sendout/internal/logger"
)

// CodeSource produces second factor codes
type CodeSource interface {
	Code() (string, error)
}

// Client signs in to Proton Mail and sends messages through its web UI
type Client struct {
	webmail     config.WebmailConfig
	timing      config.TimingConfig
	totp        CodeSource
	totpTimeout time.Duration
	log         *logger.Logger
}

// NewClient creates a new Client. A second factor is answered during login
// only when cfg.MFA.TOTPSecret is set.
func NewClient(cfg *config.Config, log *logger.Logger) (*Client, error) {
	c := &Client{
		webmail:     cfg.Webmail,
		timing:      cfg.Timing,
		totpTimeout: cfg.MFA.TOTPTimeout,
		log:         log.WithComponent("protonmail"),
	}

	if cfg.MFA.TOTPSecret != "" {
		gen, err := auth.NewTOTPGenerator(cfg.MFA.TOTPSecret)
		if err != nil {
			return nil, fmt.Errorf("failed to set up second factor: %w", err)
		}
		c.totp = gen
	}

	return c, nil
}

// sleep waits d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
