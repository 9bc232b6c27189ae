package llm

import (
	"context"
	"errors"
	"testing"
)

func intp(v int) *int { return &v }

func floatp(v float64) *float64 { return &v }

func TestResolveParamsTierDefaults(t *testing.T) {
	p := ResolveParams(GenerationPlan{Tier: "balanced"}, Defaults{})
	want := Params{ContextWindow: 8192, MaxTokens: 640, Temperature: 0.7, TopP: 0.9, TopK: 40}
	if p != want {
		t.Errorf("ResolveParams = %+v, want %+v", p, want)
	}
}

func TestResolveParamsMaxTokens(t *testing.T) {
	tests := []struct {
		name     string
		plan     GenerationPlan
		defaults Defaults
		want     int
	}{
		{"compact tier", GenerationPlan{Tier: "compact"}, Defaults{}, 320},
		{"performance tier", GenerationPlan{Tier: "Performance"}, Defaults{}, 1024},
		{"override wins", GenerationPlan{Tier: "balanced", Overrides: Overrides{MaxTokens: intp(200)}}, Defaults{MaxTokens: 900}, 200},
		{"override floor is 16", GenerationPlan{Tier: "balanced", Overrides: Overrides{MaxTokens: intp(4)}}, Defaults{}, 16},
		{"override capped by context", GenerationPlan{Tier: "balanced", Overrides: Overrides{MaxTokens: intp(100000)}}, Defaults{}, 8192 - 8192/6},
		{"tier beats config", GenerationPlan{Tier: "compact"}, Defaults{MaxTokens: 900}, 320},
		{"config for unknown tier", GenerationPlan{Tier: "custom"}, Defaults{MaxTokens: 300}, 300},
		{"config under tier none", GenerationPlan{Tier: TierNone}, Defaults{MaxTokens: 200}, 200},
		{"configured window caps tier", GenerationPlan{Tier: "performance"}, Defaults{ContextWindow: 1024}, 1024 - 1024/6},
		{"config floor is 64", GenerationPlan{Tier: "custom"}, Defaults{MaxTokens: 10}, 64},
		{"final default", GenerationPlan{}, Defaults{}, 512},
		{"small window caps tier", GenerationPlan{Tier: "compact", Overrides: Overrides{ContextWindow: intp(100)}}, Defaults{}, 160},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveParams(tt.plan, tt.defaults).MaxTokens; got != tt.want {
				t.Errorf("MaxTokens = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestResolveParamsContextWindow(t *testing.T) {
	tests := []struct {
		name     string
		plan     GenerationPlan
		defaults Defaults
		want     int
	}{
		{"tier", GenerationPlan{Tier: "balanced"}, Defaults{}, 8192},
		{"config beats tier", GenerationPlan{Tier: "balanced"}, Defaults{ContextWindow: 2048}, 2048},
		{"override beats config", GenerationPlan{Tier: "balanced", Overrides: Overrides{ContextWindow: intp(3000)}}, Defaults{ContextWindow: 2048}, 3000},
		{"tier none", GenerationPlan{Tier: TierNone}, Defaults{}, 4096},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveParams(tt.plan, tt.defaults).ContextWindow; got != tt.want {
				t.Errorf("ContextWindow = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestResolveParamsTierNoneUsesConfig(t *testing.T) {
	p := ResolveParams(GenerationPlan{Tier: TierNone}, Defaults{ContextWindow: 2048, MaxTokens: 200, Temperature: 0.3})
	want := Params{ContextWindow: 2048, MaxTokens: 200, Temperature: 0.3, TopP: 0.9, TopK: 40}
	if p != want {
		t.Errorf("ResolveParams = %+v, want %+v", p, want)
	}
}

func TestResolveParamsClamps(t *testing.T) {
	plan := GenerationPlan{
		Tier: "balanced",
		Overrides: Overrides{
			ContextWindow: intp(10_000_000),
			Temperature:   floatp(5),
			TopP:          floatp(-1),
			TopK:          intp(1000),
		},
	}
	p := ResolveParams(plan, Defaults{})
	if p.ContextWindow != 262144 {
		t.Errorf("ContextWindow = %d", p.ContextWindow)
	}
	if p.Temperature != 2 || p.TopP != 0 || p.TopK != 400 {
		t.Errorf("clamped = %+v", p)
	}

	p = ResolveParams(GenerationPlan{Overrides: Overrides{TopK: intp(0), ContextWindow: intp(1)}}, Defaults{})
	if p.TopK != 1 || p.ContextWindow != 256 {
		t.Errorf("lower clamps = %+v", p)
	}
}

func TestResolveParamsUsesConfiguredSampling(t *testing.T) {
	p := ResolveParams(GenerationPlan{Tier: "compact"}, Defaults{Temperature: 0.2, TopP: 0.5, TopK: 12})
	if p.Temperature != 0.2 || p.TopP != 0.5 || p.TopK != 12 {
		t.Errorf("ResolveParams = %+v", p)
	}
}

func TestForToolRound(t *testing.T) {
	p := Params{MaxTokens: 640, Temperature: 0.7}.forToolRound()
	if p.MaxTokens != 160 || p.Temperature != 0.35 {
		t.Errorf("forToolRound = %+v", p)
	}
	p = Params{MaxTokens: 20, Temperature: 0.1}.forToolRound()
	if p.MaxTokens != 48 || p.Temperature != 0.1 {
		t.Errorf("forToolRound = %+v", p)
	}
}

type plainModel struct{}

func (plainModel) Name() string { return "plain" }
func (plainModel) GenerateOnce(context.Context, string, Attempt) (string, error) {
	return "", nil
}
func (plainModel) StreamGenerate(context.Context, string, Attempt) (TextStream, error) {
	return &sliceStream{}, nil
}

type fakeSampler map[string]float64

func (s fakeSampler) Params() map[string]float64 { return s }

type samplerModel struct {
	plainModel
	accepts map[string]bool
	tried   [][]string
}

func (m *samplerModel) NewSampler(params map[string]float64) (Sampler, error) {
	var names []string
	for name := range params {
		names = append(names, name)
	}
	m.tried = append(m.tried, names)
	for name := range params {
		if !m.accepts[name] {
			return nil, errors.New("unexpected keyword " + name)
		}
	}
	return fakeSampler(params), nil
}

type limitedModel struct {
	plainModel
	unsupported map[string]bool
}

func (m limitedModel) SupportsParam(name string) bool { return !m.unsupported[name] }

func TestBuildAttemptsPlainBackend(t *testing.T) {
	attempts := BuildAttempts(GenerationPlan{Tier: "balanced"}, plainModel{}, Defaults{})
	if len(attempts) != 2 {
		t.Fatalf("got %d attempts", len(attempts))
	}
	if attempts[0].Kind != AttemptKeywords || attempts[1].Kind != AttemptMinimal {
		t.Errorf("kinds = %s, %s", attempts[0].Kind, attempts[1].Kind)
	}
	for _, name := range []string{ParamTemperature, ParamTopP, ParamTopK} {
		if !attempts[0].Has(name) {
			t.Errorf("keyword attempt missing %s", name)
		}
	}
	if len(attempts[1].Params) != 0 || attempts[1].MaxTokens != 640 {
		t.Errorf("minimal attempt = %+v", attempts[1])
	}
}

func TestBuildAttemptsSamplerSpellings(t *testing.T) {
	m := &samplerModel{accepts: map[string]bool{ParamTemperature: true, ParamTopP: true, ParamTopK: true}}
	attempts := BuildAttempts(GenerationPlan{Tier: "compact"}, m, Defaults{})
	if len(attempts) != 3 {
		t.Fatalf("got %d attempts", len(attempts))
	}
	if attempts[0].Kind != AttemptSampler || !attempts[0].Has(ParamTemperature) || attempts[0].Has("temp") {
		t.Errorf("sampler attempt = %s", attempts[0])
	}
	if len(m.tried) != 2 {
		t.Errorf("expected the first spelling to be rejected, tried %v", m.tried)
	}
	if attempts[2].Kind != AttemptMinimal {
		t.Errorf("last attempt = %s", attempts[2].Kind)
	}
}

func TestBuildAttemptsSamplerTemperatureOnly(t *testing.T) {
	m := &samplerModel{accepts: map[string]bool{"temp": true}}
	attempts := BuildAttempts(GenerationPlan{}, m, Defaults{})
	if attempts[0].Kind != AttemptSampler || !attempts[0].Has("temp") || attempts[0].Has(ParamTopP) {
		t.Errorf("sampler attempt = %s", attempts[0])
	}
}

func TestBuildAttemptsHonorsParamSupport(t *testing.T) {
	m := limitedModel{unsupported: map[string]bool{ParamTopK: true}}
	attempts := BuildAttempts(GenerationPlan{}, m, Defaults{})
	if attempts[0].Has(ParamTopK) || !attempts[0].Has(ParamTopP) {
		t.Errorf("keyword attempt = %s", attempts[0])
	}

	m = limitedModel{unsupported: map[string]bool{ParamTemperature: true, ParamTopP: true, ParamTopK: true}}
	attempts = BuildAttempts(GenerationPlan{}, m, Defaults{})
	if len(attempts) != 2 || attempts[0].Kind != AttemptKeywords || len(attempts[0].Params) != 0 || attempts[1].Kind != AttemptMinimal {
		t.Errorf("attempts = %v", attempts)
	}
}

func TestAttemptWithoutCopies(t *testing.T) {
	a := Attempt{Kind: AttemptKeywords, Params: map[string]float64{ParamTopK: 40, ParamTopP: 0.9}}
	b := a.Without(ParamTopK)
	if b.Has(ParamTopK) || !a.Has(ParamTopK) {
		t.Errorf("Without mutated the original: %s / %s", a, b)
	}
	if got := b.String(); got != "keywords(max_tokens=0 top_p=0.9)" {
		t.Errorf("String() = %q", got)
	}
}
