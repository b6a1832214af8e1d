package auth

import (
	"strings"

	"github.com/mdp/qrterminal/v3"
	"github.com/pquerna/otp/totp"
)

// TOTPKey holds a freshly generated enrollment secret.
type TOTPKey struct {
	Secret string
	URL    string
}

// GenerateTOTPKey mints a TOTP secret and otpauth URL for enrollment.
func GenerateTOTPKey(issuer, email string) (TOTPKey, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: email,
	})
	if err != nil {
		return TOTPKey{}, err
	}
	return TOTPKey{Secret: key.Secret(), URL: key.URL()}, nil
}

// VerifyTOTPCode checks a code against a pending enrollment secret.
func VerifyTOTPCode(secret, code string) bool {
	return totp.Validate(code, secret)
}

// QRCode renders an otpauth URL as a half-block terminal QR code.
func QRCode(url string) string {
	var b strings.Builder
	qrterminal.GenerateHalfBlock(url, qrterminal.L, &b)
	return b.String()
}
