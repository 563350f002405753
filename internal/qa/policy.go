package qa

import (
	"slices"

	"qalink/internal/models"
)

// Policy is the voting configuration read from site settings.
type Policy struct {
	Enabled       bool
	Tags          []string
	BlacklistTags []string

	// UndoWindowMinutes of 0 disables the undo window.
	UndoWindowMinutes int

	// When TrustLevelVoteLimits is off there is no per-topic vote limit.
	TrustLevelVoteLimits bool
	VoteLimits           [5]int

	VotersLimit int
}

// VoteLimit returns the per-topic limit for a trust level and whether a limit applies.
func (p Policy) VoteLimit(trustLevel int) (int, bool) {
	if !p.TrustLevelVoteLimits {
		return 0, false
	}
	if trustLevel < 0 {
		trustLevel = 0
	}
	if trustLevel >= len(p.VoteLimits) {
		trustLevel = len(p.VoteLimits) - 1
	}
	return p.VoteLimits[trustLevel], true
}

// CommentRules bounds comment content.
type CommentRules struct {
	MinRawLength int
	MaxRawLength int
	LimitPerPost int
}

// TopicAttrs are the inputs that decide whether a topic is a Q&A topic.
type TopicAttrs struct {
	IsCategoryTopic   bool
	Tags              []string
	CategoryQAEnabled bool
	Subtype           string
}

// TopicEnabled derives the Q&A status of a topic. A blacklisted tag always wins.
func (p Policy) TopicEnabled(a TopicAttrs) bool {
	if !p.Enabled || a.IsCategoryTopic {
		return false
	}
	for _, tag := range a.Tags {
		if slices.Contains(p.BlacklistTags, tag) {
			return false
		}
	}
	if a.Subtype == models.TopicSubtypeQuestion || a.CategoryQAEnabled {
		return true
	}
	for _, tag := range a.Tags {
		if slices.Contains(p.Tags, tag) {
			return true
		}
	}
	return false
}
