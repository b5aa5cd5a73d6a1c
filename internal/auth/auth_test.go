package auth

import (
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

const testSecret = "JBSWY3DPEHPK3PXP"

func TestTOTPGenerator(t *testing.T) {
	t.Parallel()

	t.Run("generates a code the secret validates", func(t *testing.T) {
		t.Parallel()
		g, err := NewTOTPGenerator(testSecret)
		require.NoError(t, err)

		at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		g.now = func() time.Time { return at }

		code, err := g.Code()
		require.NoError(t, err)
		require.Len(t, code, 6)

		valid, err := totp.ValidateCustom(code, testSecret, at, totp.ValidateOpts{Period: 30, Digits: 6})
		require.NoError(t, err)
		require.True(t, valid)
	})

	t.Run("accepts spaced lowercase secrets", func(t *testing.T) {
		t.Parallel()
		_, err := NewTOTPGenerator("jbsw y3dp ehpk 3pxp")
		require.NoError(t, err)
	})

	t.Run("rejects empty secret", func(t *testing.T) {
		t.Parallel()
		_, err := NewTOTPGenerator("  ")
		require.ErrorIs(t, err, ErrInvalidTOTPSecret)
	})

	t.Run("rejects non base32 secret", func(t *testing.T) {
		t.Parallel()
		_, err := NewTOTPGenerator("not-base32!")
		require.ErrorIs(t, err, ErrInvalidTOTPSecret)
	})
}

func TestAccountFingerprint(t *testing.T) {
	t.Parallel()

	fp := AccountFingerprint("alice@proton.me")
	require.Len(t, fp, 16)
	require.Equal(t, fp, AccountFingerprint("  Alice@Proton.me "))
	require.NotEqual(t, fp, AccountFingerprint("bob@proton.me"))
	require.NotContains(t, fp, "alice")
}
