package bypass

import (
	"testing"
)

func TestDetectRateLimit(t *testing.T) {
	if detected, _ := detectRateLimit("查询结果 240e:6b0:ab0:11:1::1086"); detected {
		t.Errorf("expected not detected")
	}

	if detected, src := detectRateLimit("<div>请求次数超过限制</div>"); !detected || src != SourceRateLimit {
		t.Errorf("expected rate limit detection, got %v %q", detected, src)
	}
}

func TestDetectRetryLater(t *testing.T) {
	if detected, src := detectRetryLater("您的IP已被限制，请24小时后重试"); !detected || src != SourceRetryLater {
		t.Errorf("expected retry-later detection, got %v %q", detected, src)
	}

	if detected, _ := detectRetryLater("请稍后重试"); detected {
		t.Errorf("expected not detected")
	}
}

func TestAnalyze(t *testing.T) {
	if detected, _ := Analyze("", DefaultDetectors()); detected {
		t.Error("expected empty text to never be blocked")
	}

	detected, src := Analyze("请求次数超过限制，请24小时后重试", DefaultDetectors())
	if !detected || src != SourceRateLimit {
		t.Errorf("expected first detector to win, got %v %q", detected, src)
	}

	custom := []Detector{PhraseDetector("Captcha", "", "verify you are human")}
	if detected, src := Analyze("please verify you are human", custom); !detected || src != "Captcha" {
		t.Errorf("expected custom detection, got %v %q", detected, src)
	}
	if detected, _ := Analyze("all good", custom); detected {
		t.Error("expected empty phrase to be ignored")
	}
}

func TestIsBlocked(t *testing.T) {
	if !IsBlocked("请24小时后重试") {
		t.Error("expected blocked")
	}
	if IsBlocked("Loading 45%") {
		t.Error("expected not blocked")
	}
}
