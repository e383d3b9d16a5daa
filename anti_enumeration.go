package flows

import (
	"strings"

	"github.com/google/uuid"
)

// MaskIdentifier lightly masks a submitted identifier for the "we sent
// instructions to …" message. The masked form echoes only what the user
// typed, it never confirms an account exists. Emails keep the first and last
// rune of the local part plus the domain; bare usernames keep the first and
// last rune.
func MaskIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return ""
	}

	if at := strings.LastIndex(identifier, "@"); at > 0 {
		return maskPart(identifier[:at]) + identifier[at:]
	}

	return maskPart(identifier)
}

func maskPart(part string) string {
	runes := []rune(part)
	if len(runes) <= 2 {
		return string(runes[:1]) + "***"
	}
	return string(runes[0]) + "***" + string(runes[len(runes)-1])
}

// syntheticAccountID produces a decoy subject for the not-found branch of an
// issue step so both branches perform the same issuer call pattern. The id
// is random per request and never stored against a real account.
func syntheticAccountID() string {
	return uuid.NewString()
}

// blackholeDestination is the neutral dispatch target for the not-found
// branch; notifier implementations drop sends with an empty destination.
const blackholeDestination = ""
