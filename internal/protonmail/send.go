package protonmail

import (
	"context"
	"fmt"

	"github.com/hostedid/sendout/internal/browser"
	"github.com/hostedid/sendout/internal/model"
)

// Send composes and sends one message on an authenticated page.
//
// The returned status is always StatusOK once the send button has been
// clicked. Delivery is not confirmed: the "Message sent" banner of the
// previous send stays visible for several seconds and cannot be told apart
// from the current one.
func (c *Client) Send(ctx context.Context, page browser.Page, address, subject, message string) (model.DeliveryStatus, error) {
	log := c.log.With().Str("address", address).Logger()

	if err := page.Click(ctx, selNewMessageButton); err != nil {
		log.Debug().Err(err).Msg("new message click failed")
		return "", ErrComposeButtonUnavailable
	}

	if err := page.WaitVisible(ctx, selNewMessageWindow, c.timing.ComposeWindowTimeout); err != nil {
		log.Debug().Err(err).Msg("composer did not open")
		return "", ErrComposeWindowUnavailable
	}

	if ok, err := page.Exists(ctx, selToAddressInput); err != nil || !ok {
		if err != nil {
			log.Debug().Err(err).Msg("to field lookup failed")
		}
		return "", ErrToFieldUnavailable
	}
	if err := page.Type(ctx, selToAddressInput, address); err != nil {
		return "", fmt.Errorf("failed to type recipient: %w", err)
	}
	// Let the address turn into a recipient chip before moving on.
	if err := sleep(ctx, c.timing.RecipientSettle); err != nil {
		return "", err
	}

	if ok, err := page.Exists(ctx, selSubjectInput); err != nil || !ok {
		if err != nil {
			log.Debug().Err(err).Msg("subject field lookup failed")
		}
		return "", ErrSubjectFieldUnavailable
	}
	if err := page.Type(ctx, selSubjectInput, subject); err != nil {
		return "", fmt.Errorf("failed to type subject: %w", err)
	}

	frame, err := page.Frame(ctx, selComposerFrame)
	if err != nil {
		log.Debug().Err(err).Msg("composer frame unavailable")
		return "", ErrBodyFieldUnavailable
	}
	if err := frame.Type(ctx, selComposerField, message); err != nil {
		log.Debug().Err(err).Msg("typing message body failed")
		return "", ErrBodyFieldUnavailable
	}

	if ok, err := page.Exists(ctx, selSendButton); err != nil || !ok {
		if err != nil {
			log.Debug().Err(err).Msg("send button lookup failed")
		}
		return "", ErrSendButtonUnavailable
	}
	if err := page.Click(ctx, selSendButton); err != nil {
		log.Debug().Err(err).Msg("send click failed")
		return "", ErrSendButtonUnavailable
	}

	log.Info().Msg("message sent")
	return model.StatusOK, nil
}
