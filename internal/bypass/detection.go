package bypass

import (
	"strings"
)

// Detector examines rendered page text to determine if the remote service
// refused to answer because of rate limiting or an identity ban.
type Detector func(text string) (detected bool, source string)

const (
	// SourceRateLimit is reported when the page says the request quota is exceeded.
	SourceRateLimit = "RateLimit"
	// SourceRetryLater is reported when the page asks to retry in 24 hours.
	SourceRetryLater = "RetryIn24h"
)

// DefaultDetectors returns the standard list of block detectors.
func DefaultDetectors() []Detector {
	return []Detector{
		detectRateLimit,
		detectRetryLater,
	}
}

// PhraseDetector builds a Detector that triggers when any phrase occurs in the text.
func PhraseDetector(source string, phrases ...string) Detector {
	return func(text string) (bool, string) {
		for _, p := range phrases {
			if p != "" && strings.Contains(text, p) {
				return true, source
			}
		}
		return false, ""
	}
}

// Analyze runs the text through all provided detectors and returns the
// source of the first one that triggers.
func Analyze(text string, detectors []Detector) (bool, string) {
	if text == "" {
		return false, ""
	}
	for _, d := range detectors {
		if detected, source := d(text); detected {
			return true, source
		}
	}
	return false, ""
}

// IsBlocked reports whether text carries any of the default block indicators.
func IsBlocked(text string) bool {
	blocked, _ := Analyze(text, DefaultDetectors())
	return blocked
}

// detectRateLimit looks for the request-quota message.
func detectRateLimit(text string) (bool, string) {
	if strings.Contains(text, "请求次数超过限制") {
		return true, SourceRateLimit
	}
	return false, ""
}

// detectRetryLater looks for the 24 hour back-off message.
func detectRetryLater(text string) (bool, string) {
	if strings.Contains(text, "24小时后重试") {
		return true, SourceRetryLater
	}
	return false, ""
}
