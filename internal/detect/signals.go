package detect

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/FranksOps/v6scout/internal/extract"
)

var progressPattern = regexp.MustCompile(`(\d+)%`)

// zeroMarker matches the "0 个 IP" summary the page renders when a lookup
// returned no addresses, but not "10 个 IP".
var zeroMarker = regexp.MustCompile(`(^|\D)0\s*个\s*IP`)

// Signals is what one tick learns from the rendered page.
type Signals struct {
	Loading      bool
	Progress     int
	ExplicitZero bool
	Addresses    []string
}

// ReadSignals inspects raw page HTML. The spinner class is matched on the
// markup, everything else on the visible text.
func ReadSignals(html string) Signals {
	text := extract.PageText(html)

	progress := 100
	if m := progressPattern.FindStringSubmatch(text); m != nil {
		if p, err := strconv.Atoi(m[1]); err == nil {
			progress = p
		}
	}

	sig := Signals{
		Progress:  progress,
		Addresses: extract.Addresses(text),
	}
	sig.Loading = strings.Contains(text, "Loading") ||
		strings.Contains(html, "ant-spin-spinning") ||
		progress < 100
	sig.ExplicitZero = zeroMarker.MatchString(text)
	return sig
}
