// Package subscription resolves a user's subscription tier and answers the
// permission questions that gate resume count, AI tools and customization.
package subscription

import (
	"fmt"
	"math"
)

// Tier is a subscription level.
type Tier string

const (
	Free    Tier = "free"
	Pro     Tier = "pro"
	ProPlus Tier = "pro_plus"
)

// ParseTier parses a wire value into a Tier.
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case Free, Pro, ProPlus:
		return Tier(s), nil
	default:
		return "", fmt.Errorf("unknown subscription tier %q", s)
	}
}

// MaxResumes returns the resume quota for a tier.
// Unknown tiers get the free quota.
func MaxResumes(t Tier) int {
	switch t {
	case Pro:
		return 3
	case ProPlus:
		return math.MaxInt
	default:
		return 1
	}
}

// CanCreateResume reports whether a user on tier t owning count resumes may
// create another.
func CanCreateResume(t Tier, count int) bool {
	return count < MaxResumes(t)
}

// CanUseAITools reports whether AI generation is available on t.
func CanUseAITools(t Tier) bool {
	return t == Pro || t == ProPlus
}

// CanUseCustomizations reports whether color and border changes are allowed on t.
func CanUseCustomizations(t Tier) bool {
	return t == ProPlus
}
