package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/420247jake/the-mind/internal/overlay/activation"
	"github.com/420247jake/the-mind/internal/overlay/reasoning"
	"github.com/420247jake/the-mind/internal/overlay/spark"
	"github.com/420247jake/the-mind/internal/overlay/timeline"
)

// Tuning is the set of visual knobs that may change while running.
type Tuning struct {
	Activation ActivationTuning `yaml:"activation" json:"activation"`
	Reasoning  ReasoningTuning  `yaml:"reasoning" json:"reasoning"`
	Timeline   TimelineTuning   `yaml:"timeline" json:"timeline"`
	Spark      SparkTuning      `yaml:"spark" json:"spark"`
}

type ActivationTuning struct {
	GlowDuration    time.Duration `yaml:"glow_duration" json:"glow_duration"`
	DecayDuration   time.Duration `yaml:"decay_duration" json:"decay_duration"`
	Stagger         time.Duration `yaml:"stagger" json:"stagger"`
	ProximityRadius float64       `yaml:"proximity_radius" json:"proximity_radius"`
	ProximityWeight float64       `yaml:"proximity_weight" json:"proximity_weight"`
	ProximityDecay  time.Duration `yaml:"proximity_decay" json:"proximity_decay"`
	SweepInterval   time.Duration `yaml:"sweep_interval" json:"sweep_interval"`
}

type ReasoningTuning struct {
	MaxPathLength int           `yaml:"max_path_length" json:"max_path_length"`
	Speed         float64       `yaml:"speed" json:"speed"`
	SettleTime    time.Duration `yaml:"settle_time" json:"settle_time"`
	Floor         float64       `yaml:"floor" json:"floor"`
	Falloff       float64       `yaml:"falloff" json:"falloff"`
	Foreshadow    float64       `yaml:"foreshadow" json:"foreshadow"`
}

type TimelineTuning struct {
	Fade  time.Duration `yaml:"fade" json:"fade"`
	Speed float64       `yaml:"speed" json:"speed"`
}

type SparkTuning struct {
	Preset  string `yaml:"preset" json:"preset"`
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Seed    uint64 `yaml:"seed" json:"seed"`
}

// Tuning ranges.
const (
	MinDuration   = 50 * time.Millisecond
	MaxDuration   = 10 * time.Minute
	MaxStagger    = 5 * time.Second
	MaxProximity  = 500.0
	MinPathLength = 2
	MaxPathLength = 16
)

// DefaultTuning returns the stock engine values.
func DefaultTuning() Tuning {
	a := activation.DefaultConfig()
	r := reasoning.DefaultConfig()
	tl := timeline.DefaultConfig()
	return Tuning{
		Activation: ActivationTuning{
			GlowDuration:    a.GlowDuration,
			DecayDuration:   a.DecayDuration,
			Stagger:         a.Stagger,
			ProximityRadius: a.ProximityRadius,
			ProximityWeight: a.ProximityWeight,
			ProximityDecay:  a.ProximityDecay,
			SweepInterval:   a.SweepInterval,
		},
		Reasoning: ReasoningTuning{
			MaxPathLength: r.MaxPathLength,
			Speed:         r.Speed,
			SettleTime:    r.SettleTime,
			Floor:         r.Floor,
			Falloff:       r.Falloff,
			Foreshadow:    r.Foreshadow,
		},
		Timeline: TimelineTuning{Fade: tl.Fade, Speed: tl.Speed},
		Spark:    SparkTuning{Preset: spark.Calm, Enabled: true, Seed: 1},
	}
}

// Clamped returns t with every value forced into its range. adjusted names
// the fields that had to change.
func (t Tuning) Clamped() (out Tuning, adjusted []string) {
	out = t
	dur := func(name string, v *time.Duration, lo, hi time.Duration) {
		switch {
		case *v < lo:
			*v = lo
		case *v > hi:
			*v = hi
		default:
			return
		}
		adjusted = append(adjusted, name)
	}
	num := func(name string, v *float64, lo, hi float64) {
		switch {
		case math.IsNaN(*v), *v < lo:
			*v = lo
		case *v > hi:
			*v = hi
		default:
			return
		}
		adjusted = append(adjusted, name)
	}

	a := &out.Activation
	dur("activation.glow_duration", &a.GlowDuration, 0, MaxDuration)
	dur("activation.decay_duration", &a.DecayDuration, MinDuration, MaxDuration)
	dur("activation.stagger", &a.Stagger, 0, MaxStagger)
	num("activation.proximity_radius", &a.ProximityRadius, 0, MaxProximity)
	num("activation.proximity_weight", &a.ProximityWeight, 0, 1)
	dur("activation.proximity_decay", &a.ProximityDecay, MinDuration, MaxDuration)
	dur("activation.sweep_interval", &a.SweepInterval, MinDuration, MaxDuration)

	r := &out.Reasoning
	if r.MaxPathLength < MinPathLength || r.MaxPathLength > MaxPathLength {
		r.MaxPathLength = min(max(r.MaxPathLength, MinPathLength), MaxPathLength)
		adjusted = append(adjusted, "reasoning.max_path_length")
	}
	num("reasoning.speed", &r.Speed, reasoning.MinSpeed, reasoning.MaxSpeed)
	dur("reasoning.settle_time", &r.SettleTime, 0, MaxDuration)
	num("reasoning.floor", &r.Floor, 0, 1)
	num("reasoning.falloff", &r.Falloff, 0, 1)
	num("reasoning.foreshadow", &r.Foreshadow, 0, 1)

	tl := &out.Timeline
	dur("timeline.fade", &tl.Fade, MinDuration, MaxDuration)
	num("timeline.speed", &tl.Speed, timeline.MinSpeed, timeline.MaxSpeed)

	if _, ok := spark.Lookup(out.Spark.Preset); !ok {
		out.Spark.Preset = spark.Calm
		adjusted = append(adjusted, "spark.preset")
	}
	return out, adjusted
}

func (t Tuning) ActivationConfig() activation.Config {
	a := t.Activation
	return activation.Config{
		GlowDuration:    a.GlowDuration,
		DecayDuration:   a.DecayDuration,
		Stagger:         a.Stagger,
		ProximityRadius: a.ProximityRadius,
		ProximityWeight: a.ProximityWeight,
		ProximityDecay:  a.ProximityDecay,
		SweepInterval:   a.SweepInterval,
	}
}

func (t Tuning) ReasoningConfig() reasoning.Config {
	r := t.Reasoning
	return reasoning.Config{
		MaxPathLength: r.MaxPathLength,
		Speed:         r.Speed,
		SettleTime:    r.SettleTime,
		Floor:         r.Floor,
		Falloff:       r.Falloff,
		Foreshadow:    r.Foreshadow,
	}
}

func (t Tuning) TimelineConfig() timeline.Config {
	return timeline.Config{Fade: t.Timeline.Fade, Speed: t.Timeline.Speed}
}

// LoadTuningFile overlays the YAML file at path on base. Keys missing from
// the file keep their base value.
func LoadTuningFile(path string, base Tuning) (Tuning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, err
	}
	t := base
	if err := yaml.Unmarshal(data, &t); err != nil {
		return base, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return t, nil
}
