package reputation

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Policy turns an execution outcome into a reputation adjustment. The curve is
// deliberately opaque to callers; only the contract is fixed.
type Policy interface {
	Score(currentScore int, isSuccess bool, executionTimeMs, maxLatencyMs int64) (delta, newScore int, breakdown map[string]int, latencyBonusApplied bool)
	StartScore() int
}

// DefaultPolicy is the stock additive policy: a fixed reward or penalty plus a
// small bonus for fast executions, clamped to [Floor, Ceiling].
type DefaultPolicy struct {
	Start          int `yaml:"start"`
	Floor          int `yaml:"floor"`
	Ceiling        int `yaml:"ceiling"`
	SuccessDelta   int `yaml:"success_delta"`
	FailureDelta   int `yaml:"failure_delta"`
	LatencyBonus   int `yaml:"latency_bonus"`
	// LatencyBonusDivisor divides maxLatencyMs to get the bonus threshold.
	LatencyBonusDivisor int64 `yaml:"latency_bonus_divisor"`
}

// NewDefaultPolicy returns the built-in parameters.
func NewDefaultPolicy() *DefaultPolicy {
	return &DefaultPolicy{
		Start:               50,
		Floor:               0,
		Ceiling:             100,
		SuccessDelta:        2,
		FailureDelta:        -5,
		LatencyBonus:        1,
		LatencyBonusDivisor: 2,
	}
}

// LoadPolicy reads policy parameters from a yaml file, falling back to the
// built-in defaults for any omitted field.
func LoadPolicy(path string) (*DefaultPolicy, error) {
	policy := NewDefaultPolicy()
	if path == "" {
		return policy, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, policy); err != nil {
		return nil, fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}
	if policy.Floor > policy.Ceiling {
		return nil, fmt.Errorf("policy floor %d exceeds ceiling %d", policy.Floor, policy.Ceiling)
	}
	if policy.LatencyBonusDivisor <= 0 {
		return nil, fmt.Errorf("policy latency_bonus_divisor must be positive, got %d", policy.LatencyBonusDivisor)
	}
	return policy, nil
}

func (p *DefaultPolicy) StartScore() int {
	return p.Start
}

func (p *DefaultPolicy) Score(currentScore int, isSuccess bool, executionTimeMs, maxLatencyMs int64) (int, int, map[string]int, bool) {
	breakdown := make(map[string]int)

	delta := p.FailureDelta
	if isSuccess {
		delta = p.SuccessDelta
	}
	breakdown["outcome"] = delta

	bonusApplied := false
	if isSuccess && maxLatencyMs > 0 && executionTimeMs <= maxLatencyMs/p.LatencyBonusDivisor {
		delta += p.LatencyBonus
		breakdown["latency_bonus"] = p.LatencyBonus
		bonusApplied = true
	}

	newScore := currentScore + delta
	if newScore < p.Floor {
		newScore = p.Floor
	}
	if newScore > p.Ceiling {
		newScore = p.Ceiling
	}

	return delta, newScore, breakdown, bonusApplied
}
