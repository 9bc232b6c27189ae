package llm

import (
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"strings"
)

const (
	minContextWindow = 256
	maxContextWindow = 262144
	defaultContext   = 4096

	minPromptReserve = 96
	maxPromptReserve = 4096

	defaultMaxTokens = 512
	defaultTopP      = 0.9
	defaultTopK      = 40
	defaultTemp      = 0.7

	toolRoundMinTokens = 48
	toolRoundMaxTokens = 160
	toolRoundMaxTemp   = 0.35
)

// Keyword parameter names sent to backends.
const (
	ParamTemperature = "temperature"
	ParamTopP        = "top_p"
	ParamTopK        = "top_k"
)

// Tier is a named hardware profile with generation defaults.
type Tier struct {
	Name          string
	ContextWindow int
	MaxTokens     int
	Temperature   float64
}

var tiers = map[string]Tier{
	"compact":     {Name: "compact", ContextWindow: 4096, MaxTokens: 320, Temperature: 0.6},
	"balanced":    {Name: "balanced", ContextWindow: 8192, MaxTokens: 640, Temperature: 0.7},
	"performance": {Name: "performance", ContextWindow: 16384, MaxTokens: 1024, Temperature: 0.7},
}

// TierNone disables the tier table so configured defaults apply.
const TierNone = "none"

// LookupTier returns the tier named name. Unknown names yield a tier with no
// defaults of its own. TierNone is known and has no defaults.
func LookupTier(name string) (Tier, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == TierNone {
		return Tier{Name: TierNone}, true
	}
	t, ok := tiers[name]
	if !ok {
		return Tier{Name: name}, false
	}
	return t, true
}

// TierNames returns the known tier names, sorted, followed by TierNone.
func TierNames() []string {
	names := make([]string, 0, len(tiers)+1)
	for name := range tiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return append(names, TierNone)
}

// Overrides are per-turn parameter overrides. Nil fields are unset.
type Overrides struct {
	ContextWindow *int
	MaxTokens     *int
	Temperature   *float64
	TopP          *float64
	TopK          *int
}

// GenerationPlan describes how one user turn should be generated.
type GenerationPlan struct {
	Tier        string
	UserText    string
	ContextMood string
	ActiveTools []string
	Overrides   Overrides
}

// Defaults are configured fallbacks below the tier table.
// Zero values are unset.
type Defaults struct {
	ContextWindow int
	MaxTokens     int
	Temperature   float64
	TopP          float64
	TopK          int
}

// Params are the resolved, clamped generation parameters for a round.
type Params struct {
	ContextWindow int
	MaxTokens     int
	Temperature   float64
	TopP          float64
	TopK          int
}

// ResolveParams applies overrides, the tier table and defaults, clamping
// every value into its legal range.
//
// The context window comes from the override, then the configured window,
// then the tier. max_tokens comes from the override, then the tier, then the
// configured value, so a configured max_tokens only applies under TierNone or
// an unknown tier.
func ResolveParams(plan GenerationPlan, defaults Defaults) Params {
	tier, _ := LookupTier(plan.Tier)
	o := plan.Overrides

	window := firstPositive(deref(o.ContextWindow), defaults.ContextWindow, tier.ContextWindow, defaultContext)
	window = clampInt(window, minContextWindow, maxContextWindow)
	reserve := clampInt(window/6, minPromptReserve, maxPromptReserve)
	limit := window - reserve

	var maxTokens int
	switch {
	case o.MaxTokens != nil:
		maxTokens = clampInt(*o.MaxTokens, 16, limit)
	case tier.MaxTokens > 0:
		maxTokens = clampInt(tier.MaxTokens, 64, limit)
	case defaults.MaxTokens > 0:
		maxTokens = clampInt(defaults.MaxTokens, 64, limit)
	default:
		maxTokens = clampInt(defaultMaxTokens, 64, limit)
	}

	temp := defaultTemp
	switch {
	case o.Temperature != nil:
		temp = *o.Temperature
	case defaults.Temperature > 0:
		temp = defaults.Temperature
	case tier.Temperature > 0:
		temp = tier.Temperature
	}

	topP := defaultTopP
	if o.TopP != nil {
		topP = *o.TopP
	} else if defaults.TopP > 0 {
		topP = defaults.TopP
	}

	topK := firstPositive(deref(o.TopK), defaults.TopK, defaultTopK)
	if o.TopK != nil {
		topK = *o.TopK
	}

	return Params{
		ContextWindow: window,
		MaxTokens:     maxTokens,
		Temperature:   clampFloat(temp, 0, 2),
		TopP:          clampFloat(topP, 0, 1),
		TopK:          clampInt(topK, 1, 400),
	}
}

// forToolRound narrows parameters for short, deterministic tool selection.
func (p Params) forToolRound() Params {
	p.MaxTokens = clampInt(p.MaxTokens, toolRoundMinTokens, toolRoundMaxTokens)
	p.Temperature = clampFloat(p.Temperature, 0, toolRoundMaxTemp)
	return p
}

// AttemptKind tags an attempt variant.
type AttemptKind string

const (
	AttemptSampler  AttemptKind = "sampler"
	AttemptKeywords AttemptKind = "keywords"
	AttemptMinimal  AttemptKind = "minimal"
)

// Attempt is one parameter configuration tried against the backend.
type Attempt struct {
	Kind      AttemptKind
	MaxTokens int
	// Sampler is set for AttemptSampler.
	Sampler Sampler
	// Params holds keyword parameters for AttemptKeywords.
	Params map[string]float64
}

// Has reports whether the attempt sends the named parameter.
func (a Attempt) Has(name string) bool {
	if _, ok := a.Params[name]; ok {
		return true
	}
	if a.Sampler != nil {
		_, ok := a.Sampler.Params()[name]
		return ok
	}
	return false
}

// Without returns a copy of the attempt with a keyword parameter removed.
func (a Attempt) Without(name string) Attempt {
	out := a
	out.Params = maps.Clone(a.Params)
	delete(out.Params, name)
	return out
}

func (a Attempt) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s(max_tokens=%d", a.Kind, a.MaxTokens)
	params := a.Params
	if a.Sampler != nil {
		params = a.Sampler.Params()
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%g", k, params[k])
	}
	b.WriteString(")")
	return b.String()
}

var samplerSpellings = [][]string{
	{"temp", ParamTopP, ParamTopK},
	{ParamTemperature, ParamTopP, ParamTopK},
	{"temp"},
	{ParamTemperature},
}

// BuildAttempts returns the ordered attempts for plan: an optional sampler
// attempt, the keyword attempt and the minimal attempt. It never fails.
func BuildAttempts(plan GenerationPlan, model TextCompletionModel, defaults Defaults) []Attempt {
	return attemptsFor(ResolveParams(plan, defaults), model)
}

func attemptsFor(p Params, model TextCompletionModel) []Attempt {
	attempts := make([]Attempt, 0, 3)

	if factory, ok := model.(SamplerFactory); ok {
		values := map[string]float64{
			"temp":           p.Temperature,
			ParamTemperature: p.Temperature,
			ParamTopP:        p.TopP,
			ParamTopK:        float64(p.TopK),
		}
		for _, spelling := range samplerSpellings {
			args := make(map[string]float64, len(spelling))
			for _, name := range spelling {
				args[name] = values[name]
			}
			s, err := factory.NewSampler(args)
			if err != nil || s == nil {
				slog.Debug("sampler spelling rejected", "model", model.Name(), "params", spelling, "error", err)
				continue
			}
			attempts = append(attempts, Attempt{Kind: AttemptSampler, MaxTokens: p.MaxTokens, Sampler: s})
			break
		}
	}

	keywords := map[string]float64{
		ParamTemperature: p.Temperature,
		ParamTopP:        p.TopP,
		ParamTopK:        float64(p.TopK),
	}
	if support, ok := model.(ParamSupport); ok {
		for name := range keywords {
			if !support.SupportsParam(name) {
				delete(keywords, name)
			}
		}
	}
	// The keyword attempt stays even when every keyword was filtered out.
	attempts = append(attempts, Attempt{Kind: AttemptKeywords, MaxTokens: p.MaxTokens, Params: keywords})

	return append(attempts, Attempt{Kind: AttemptMinimal, MaxTokens: p.MaxTokens})
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
