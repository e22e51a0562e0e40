// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// RemainingSearches is the outstanding rewards search quota reported by
// the browser session, split by device profile.
type RemainingSearches struct {
	// Desktop is the number of desktop-profile searches still counted
	// toward today's rewards.
	Desktop int `json:"desktop" yaml:"desktop"`

	// Mobile is the number of mobile-profile searches still counted
	// toward today's rewards.
	Mobile int `json:"mobile" yaml:"mobile"`
}

// Total returns the combined desktop and mobile quota.
func (r RemainingSearches) Total() int {
	return r.Desktop + r.Mobile
}
