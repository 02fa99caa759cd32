package roster

import "strings"

// EmailRule canonicalizes institutional email addresses so that addresses
// reported by Canvas match the ones on the roster. Addresses on AliasDomain
// are rewritten to CanonicalDomain, e.g. umail.ucsb.edu -> ucsb.edu.
type EmailRule struct {
	AliasDomain     string
	CanonicalDomain string
}

// Canonical returns the normalized form of email.
func (r EmailRule) Canonical(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	alias := strings.ToLower(strings.TrimSpace(r.AliasDomain))
	if alias == "" || r.CanonicalDomain == "" {
		return email
	}
	if local, ok := strings.CutSuffix(email, "@"+alias); ok {
		return local + "@" + strings.ToLower(strings.TrimSpace(r.CanonicalDomain))
	}
	return email
}
