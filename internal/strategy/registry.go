package strategy

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"swing-backtest/internal/model"
)

// ErrUnknownStrategy is returned by Registry.Build for unregistered names.
var ErrUnknownStrategy = errors.New("unknown strategy")

// Factory builds a strategy from a YAML params block. params may be nil,
// in which case the strategy's defaults are used.
type Factory func(params *yaml.Node) (Strategy, error)

// Registry maps strategy names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry with every built-in strategy registered.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(NameTrend5EMA, newTrend5EMAFromYAML)
	r.Register(NameMATrend, newMATrendFromYAML)
	r.Register(NameScaledTrend, newScaledTrendFromYAML)
	r.Register(NameScaledMA, newScaledMAFromYAML)
	r.Register(NameTrendEMA, newTrendEMAFromYAML)
	r.Register(NameLowMarker, newLowMarkerFromYAML)
	r.Register(NameAdaptiveMA, newAdaptiveMAFromYAML)
	r.Register(NameBongo, newBongoFromYAML)
	r.Register(NameBuyAndHold, newBuyAndHoldFromYAML)
	r.Register(NameCalendar, newCalendarFromYAML)
	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Build constructs the named strategy.
func (r *Registry) Build(name string, params *yaml.Node) (Strategy, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %v)", ErrUnknownStrategy, name, r.Names())
	}
	s, err := f(params)
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", name, err)
	}
	return s, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeParams decodes params over the defaults already in dst, rejecting
// unknown keys, then validates dst.
func decodeParams(params *yaml.Node, dst any) error {
	if params != nil && params.Kind != 0 {
		raw, err := yaml.Marshal(params)
		if err != nil {
			return fmt.Errorf("encode params: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(dst); err != nil {
			return fmt.Errorf("decode params: %w", err)
		}
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

// paramsTimeframe peeks at the timeframe key so that timeframe-specific
// defaults can be chosen before the full decode.
func paramsTimeframe(params *yaml.Node, fallback model.Timeframe) (model.Timeframe, error) {
	if params == nil || params.Kind == 0 {
		return fallback, nil
	}
	var peek struct {
		Timeframe model.Timeframe `yaml:"timeframe"`
	}
	if err := params.Decode(&peek); err != nil {
		return "", fmt.Errorf("decode params: %w", err)
	}
	switch peek.Timeframe {
	case "":
		return fallback, nil
	case model.Daily, model.Weekly:
		return peek.Timeframe, nil
	}
	return "", fmt.Errorf("invalid timeframe %q", peek.Timeframe)
}
