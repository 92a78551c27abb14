package model

import "time"

// ChatPolicy is the per-chat moderation configuration. A chat without a
// stored policy is moderated with the system defaults; absence never means
// "moderation disabled".
type ChatPolicy struct {
	LinkFilterEnabled    bool     `json:"link_filter_enabled"`
	ForwardFilterEnabled bool     `json:"forward_filter_enabled"`
	WhitelistedDomains   []string `json:"whitelisted_domains,omitempty"`
	ViolationThreshold   int      `json:"violation_threshold"`
	MuteDurationSeconds  int      `json:"mute_duration_seconds"`
}

func (p ChatPolicy) MuteDuration() time.Duration {
	return time.Duration(p.MuteDurationSeconds) * time.Second
}

func (p ChatPolicy) Valid() bool {
	return p.ViolationThreshold >= 1 && p.MuteDurationSeconds >= 1
}
