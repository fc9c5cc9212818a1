package domain

import "strings"

// User is the profile record fetched from the backend. full_name, username,
// and phone are all optional on the wire; completeness rules below decide
// what the dashboard does with a partially filled profile.
type User struct {
	ID       int64  `json:"id"`
	Email    string `json:"email,omitempty"`
	FullName string `json:"full_name,omitempty"`
	Username string `json:"username,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Role     string `json:"role,omitempty"`
}

// placeholderNamePrefix marks accounts auto-provisioned by the backend
// before the user picked a real name (e.g. "User 123").
const placeholderNamePrefix = "User "

// IsIncomplete reports whether the profile is missing the minimum fields
// required to use the product. Phone is never required.
func (u User) IsIncomplete() bool {
	return u.FullName == "" || u.Username == ""
}

// LooksLikeNewUser reports whether the full name looks auto-generated: a
// placeholder prefix, or an email address copied into the name field.
func (u User) LooksLikeNewUser() bool {
	if u.FullName == "" {
		return false
	}
	return strings.HasPrefix(u.FullName, placeholderNamePrefix) || strings.Contains(u.FullName, "@")
}

// ProfileAction is what the dashboard shell should do with the user.
type ProfileAction string

const (
	// ActionNone lets the user through.
	ActionNone ProfileAction = "none"

	// ActionOnboard routes a fresh account into the onboarding flow.
	ActionOnboard ProfileAction = "onboard"

	// ActionPrompt surfaces an inline profile-completion prompt without
	// redirecting an established account.
	ActionPrompt ProfileAction = "prompt"
)

// onboardingExemptPaths are page paths where the onboarding redirect must
// not fire (the user is already there, or is on the way out).
var onboardingExemptPaths = []string{"/onboarding", "/logout"}

// OnboardingDecision is the routing decision consumed by the dashboard
// shell. It is a pure function of the profile and the current page path; it
// performs no navigation itself.
func OnboardingDecision(u User, pagePath string) ProfileAction {
	if !u.IsIncomplete() {
		return ActionNone
	}
	for _, p := range onboardingExemptPaths {
		if strings.Contains(pagePath, p) {
			return ActionNone
		}
	}
	if u.LooksLikeNewUser() {
		return ActionOnboard
	}
	return ActionPrompt
}
