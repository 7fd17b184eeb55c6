package fingerprint

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/FranksOps/v6scout/pkg/useragent"
)

// Viewport is a browser window size in CSS pixels.
type Viewport struct {
	Width  int64 `mapstructure:"width" yaml:"width"`
	Height int64 `mapstructure:"height" yaml:"height"`
}

// Identity is the browser profile presented to the lookup site for one
// session lifetime.
type Identity struct {
	UserAgent string
	Viewport  Viewport
	Locale    string
	Timezone  string
}

// DefaultViewports are common desktop resolutions.
var DefaultViewports = []Viewport{
	{Width: 1920, Height: 1080},
	{Width: 1440, Height: 900},
	{Width: 1536, Height: 864},
	{Width: 1366, Height: 768},
}

var (
	DefaultLocales   = []string{"zh-CN", "zh-TW", "en-US"}
	DefaultTimezones = []string{"Asia/Shanghai", "Asia/Hong_Kong", "Asia/Taipei"}
)

// IdentityConfig lists the pools an Identity is drawn from. Empty pools use the defaults.
type IdentityConfig struct {
	UserAgents []string
	Viewports  []Viewport
	Locales    []string
	Timezones  []string
	// Seed makes generation deterministic when non-zero.
	Seed uint64
}

// Generator draws random identities.
type Generator struct {
	mu        sync.Mutex
	rng       *rand.Rand
	uas       *useragent.Pool
	viewports []Viewport
	locales   []string
	timezones []string
}

// NewGenerator creates an identity generator.
func NewGenerator(cfg IdentityConfig) *Generator {
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	g := &Generator{
		rng:       rand.New(rand.NewPCG(seed, seed>>1|1)),
		uas:       useragent.NewPool(cfg.UserAgents),
		viewports: cfg.Viewports,
		locales:   cfg.Locales,
		timezones: cfg.Timezones,
	}
	if len(g.viewports) == 0 {
		g.viewports = DefaultViewports
	}
	if len(g.locales) == 0 {
		g.locales = DefaultLocales
	}
	if len(g.timezones) == 0 {
		g.timezones = DefaultTimezones
	}
	return g
}

// Next returns a freshly drawn identity.
func (g *Generator) Next() Identity {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Identity{
		UserAgent: g.uas.At(g.rng.IntN(g.uas.Len())),
		Viewport:  g.viewports[g.rng.IntN(len(g.viewports))],
		Locale:    g.locales[g.rng.IntN(len(g.locales))],
		Timezone:  g.timezones[g.rng.IntN(len(g.timezones))],
	}
}
