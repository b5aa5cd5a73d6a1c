package protonmail

// Page element selectors of the Proton Mail web client
const (
	selUsernameInput     = "#username"
	selPasswordInput     = "#password"
	selSubmitCredentials = "[type='submit']"
	selTOTPInput         = "#totp"
	selNewMessageButton  = ".button.button-large.button-solid-norm"
	selNewMessageWindow  = "span.cursor-move"
	selToAddressInput    = "[placeholder='Email address']"
	selSubjectInput      = "[placeholder='Subject']"
	selComposerFrame     = "[title='Email composer']"
	selComposerField     = "#rooster-editor"
	selSendButton        = "[data-testid='composer:send-button']"

	// selSentBanner marks the "Message sent" notification. Unused: a banner
	// from the previous send is still on screen when the next one is
	// triggered, so its presence says nothing about the current message.
	selSentBanner = "div[role='alert'].bg-success"
)
