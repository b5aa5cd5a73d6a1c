package protonmail

import (
	"context"
	"fmt"

	"github.com/hostedid/sendout/internal/browser"
)

// LogIn opens a page on b, signs in with the given credentials and returns
// the page once the inbox has loaded.
func (c *Client) LogIn(ctx context.Context, b browser.Browser, username, password string) (browser.Page, error) {
	page, err := b.NewPage(ctx)
	if err != nil {
		return nil, err
	}

	if err := page.Navigate(ctx, c.webmail.LoginURL); err != nil {
		return nil, err
	}
	if err := page.WaitNetworkIdle(ctx, c.timing.NetworkIdle); err != nil {
		return nil, fmt.Errorf("login page did not settle: %w", err)
	}

	hasUsername, err := page.Exists(ctx, selUsernameInput)
	if err != nil {
		c.log.Debug().Err(err).Msg("username lookup failed")
	}
	hasPassword, err := page.Exists(ctx, selPasswordInput)
	if err != nil {
		c.log.Debug().Err(err).Msg("password lookup failed")
	}
	if !hasUsername || !hasPassword {
		return nil, ErrAuthElementsUnavailable
	}

	if err := page.Type(ctx, selUsernameInput, username); err != nil {
		return nil, fmt.Errorf("failed to type username: %w", err)
	}
	if err := page.Type(ctx, selPasswordInput, password); err != nil {
		return nil, fmt.Errorf("failed to type password: %w", err)
	}

	hasSubmit, err := page.Exists(ctx, selSubmitCredentials)
	if err != nil {
		c.log.Debug().Err(err).Msg("submit lookup failed")
	}
	if !hasSubmit {
		return nil, ErrSubmitButtonUnavailable
	}
	if err := page.Click(ctx, selSubmitCredentials); err != nil {
		c.log.Debug().Err(err).Msg("submit click failed")
		return nil, ErrSubmitButtonUnavailable
	}
	c.log.Info().Msg("credentials submitted")

	if c.totp != nil {
		if err := c.answerSecondFactor(ctx, page); err != nil {
			return nil, err
		}
	}

	if err := c.waitForInbox(ctx, page); err != nil {
		return nil, err
	}

	if err := page.WaitNetworkIdle(ctx, c.timing.PostLoginIdle); err != nil {
		return nil, fmt.Errorf("inbox did not settle: %w", err)
	}
	// The web client keeps rendering after the network goes quiet.
	if err := sleep(ctx, c.timing.PostLoginSettle); err != nil {
		return nil, err
	}

	c.log.Info().Msg("logged in")
	return page, nil
}

func (c *Client) answerSecondFactor(ctx context.Context, page browser.Page) error {
	if err := page.WaitVisible(ctx, selTOTPInput, c.totpTimeout); err != nil {
		c.log.Debug().Err(err).Msg("second factor field did not appear")
		return ErrTOTPFieldUnavailable
	}

	code, err := c.totp.Code()
	if err != nil {
		return err
	}
	if err := page.Type(ctx, selTOTPInput, code); err != nil {
		return fmt.Errorf("failed to type second factor code: %w", err)
	}
	if err := page.Click(ctx, selSubmitCredentials); err != nil {
		c.log.Debug().Err(err).Msg("second factor submit failed")
		return ErrSubmitButtonUnavailable
	}

	c.log.Info().Msg("second factor submitted")
	return nil
}

// waitForInbox polls the page URL until it is the inbox URL
func (c *Client) waitForInbox(ctx context.Context, page browser.Page) error {
	attempts := c.timing.LoginPollAttempts
	for i := 0; i < attempts; i++ {
		url, err := page.URL(ctx)
		if err != nil {
			c.log.Debug().Err(err).Int("attempt", i+1).Msg("reading page URL failed")
		} else if url == c.webmail.InboxURL {
			return nil
		}

		if i < attempts-1 {
			if err := sleep(ctx, c.timing.LoginPollInterval); err != nil {
				return err
			}
		}
	}

	c.log.Warn().Int("attempts", attempts).Msg("inbox not reached")
	return ErrInboxUnreachable
}
