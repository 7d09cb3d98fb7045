package consumer

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

// license is the decoded token payload. Tokens are base64 JSON; no signature
// verification happens client side.
type license struct {
	ID        string `json:"id"`
	ExpiresOn string `json:"expires_on"`
}

// validateLicense checks a configured token. An empty token is valid: the
// runtime runs unlicensed with every feature enabled.
func validateLicense(token string, now time.Time) error {
	if token == "" {
		return nil
	}

	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return InvalidLicenseTokenError{Reason: "not base64"}
	}

	var l license
	if err := json.Unmarshal(raw, &l); err != nil {
		return InvalidLicenseTokenError{Reason: "not a license payload"}
	}
	if l.ID == "" || l.ExpiresOn == "" {
		return InvalidLicenseTokenError{Reason: "missing id or expiry"}
	}

	expires, err := time.Parse("2006-01-02", l.ExpiresOn)
	if err != nil {
		return InvalidLicenseTokenError{Reason: "malformed expiry date"}
	}
	if now.After(expires.AddDate(0, 0, 1)) {
		return ExpiredLicenseTokenError{ExpiredOn: l.ExpiresOn}
	}

	return nil
}
