package broker

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// renewalWindow is how far ahead of token expiry a session counts as
// expiring soon. Broker OAuth tokens typically last 24h and renewing inside
// this window keeps the nightly jobs from failing mid-batch.
const renewalWindow = 12 * time.Hour

// tokenExpiresSoon reports whether a broker session expires within the
// renewal window. When the access token is a JWT its exp claim wins;
// otherwise the configured expiry applies. A token with no known expiry
// never reports as expiring.
func tokenExpiresSoon(token string, configuredExpiry time.Time, now time.Time) bool {
	if exp, ok := jwtExpiry(token); ok {
		return exp.Before(now.Add(renewalWindow))
	}
	if !configuredExpiry.IsZero() {
		return configuredExpiry.Before(now.Add(renewalWindow))
	}
	return false
}

// jwtExpiry extracts the exp claim from a JWT access token without
// verifying the signature; only the broker can verify it, we just need the
// deadline.
func jwtExpiry(token string) (time.Time, bool) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
