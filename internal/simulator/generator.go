package simulator

import (
	"math"
	"math/rand"
	"time"

	"aquarium-monitor/internal/models"
)

// Range closed interval of generated values
type Range struct {
	Min, Max float64
}

func (r Range) sample(random *rand.Rand) float64 {
	return r.Min + random.Float64()*(r.Max-r.Min)
}

type generatorRules struct {
	temperature  Range
	ph           Range
	turbidity    Range
	ammonia      Range
	uv           Range
	waterLevel   Range
	waterLevelCm Range
	foodEmptyP   float64
}

func defaultGeneratorRules() *generatorRules {
	return &generatorRules{
		temperature:  Range{22, 26},
		ph:           Range{6.5, 7.5},
		turbidity:    Range{3, 11},
		ammonia:      Range{0, 0.3},
		uv:           Range{800, 1200},
		waterLevel:   Range{70, 100},
		waterLevelCm: Range{15, 25},
		foodEmptyP:   0.3,
	}
}

type GeneratorOption func(g *Generator)

func orderedRange(min, max float64) Range {
	if min > max {
		min, max = max, min
	}
	return Range{Min: min, Max: max}
}

func WithTemperature(min, max float64) GeneratorOption {
	return func(g *Generator) { g.rules.temperature = orderedRange(min, max) }
}

func WithPH(min, max float64) GeneratorOption {
	return func(g *Generator) { g.rules.ph = orderedRange(min, max) }
}

func WithTurbidity(min, max float64) GeneratorOption {
	return func(g *Generator) { g.rules.turbidity = orderedRange(min, max) }
}

func WithAmmonia(min, max float64) GeneratorOption {
	return func(g *Generator) { g.rules.ammonia = orderedRange(min, max) }
}

func WithUV(min, max float64) GeneratorOption {
	return func(g *Generator) { g.rules.uv = orderedRange(min, max) }
}

// WithWaterLevel percent range, clamped to [0,100]
func WithWaterLevel(min, max float64) GeneratorOption {
	return func(g *Generator) {
		r := orderedRange(min, max)
		g.rules.waterLevel = Range{Min: math.Max(r.Min, 0), Max: math.Min(r.Max, 100)}
	}
}

func WithWaterLevelCm(min, max float64) GeneratorOption {
	return func(g *Generator) { g.rules.waterLevelCm = orderedRange(min, max) }
}

// WithFoodEmptyProbability p is clamped to [0,1]
func WithFoodEmptyProbability(p float64) GeneratorOption {
	return func(g *Generator) { g.rules.foodEmptyP = math.Min(math.Max(p, 0), 1) }
}

// WithRand replaces the random source
func WithRand(r *rand.Rand) GeneratorOption {
	return func(g *Generator) { g.random = r }
}

// Generator produces plausible aquarium sensor readings
type Generator struct {
	rules  *generatorRules
	random *rand.Rand
}

func NewGenerator(opts ...GeneratorOption) *Generator {
	g := &Generator{
		rules:  defaultGeneratorRules(),
		random: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Next one reading. Not safe for concurrent use.
func (g *Generator) Next() models.Sensors {
	return models.Sensors{
		Temperature:  round(g.rules.temperature.sample(g.random), 1),
		PH:           round(g.rules.ph.sample(g.random), 2),
		Turbidity:    round(g.rules.turbidity.sample(g.random), 1),
		Ammonia:      round(g.rules.ammonia.sample(g.random), 2),
		UV:           math.Floor(g.rules.uv.sample(g.random)),
		WaterLevel:   int(math.Floor(g.rules.waterLevel.sample(g.random))),
		WaterLevelCm: round(g.rules.waterLevelCm.sample(g.random), 1),
		FoodEmpty:    g.random.Float64() < g.rules.foodEmptyP,
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
