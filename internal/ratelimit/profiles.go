// Package ratelimit paces form submissions and adapts to server
// throttling with an escalating penalty and cooldown scheme.
package ratelimit

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Profile bundles the pacing knobs for one aggressiveness level.
type Profile struct {
	Name           string
	MinInterval    time.Duration // floor between submit attempts
	PenaltyInitial time.Duration // first penalty after a throttle
	PenaltyMax     time.Duration // penalty escalation cap
	CooldownAfter  int           // consecutive throttles before a cooldown
	Cooldown       time.Duration // one-off pause once triggered
	SuccessDelay   time.Duration // pause after a successful submit
	JitterMax      time.Duration // random extra spread per wait
}

// Built-in profile names.
const (
	ProfileNormal = "normal"
	ProfileSafe   = "safe"
	ProfileUltra  = "ultra"
)

func builtinProfiles() map[string]Profile {
	return map[string]Profile{
		ProfileNormal: {
			Name:           ProfileNormal,
			MinInterval:    6 * time.Second,
			PenaltyInitial: 20 * time.Second,
			PenaltyMax:     180 * time.Second,
			CooldownAfter:  3,
			Cooldown:       120 * time.Second,
			SuccessDelay:   4 * time.Second,
			JitterMax:      1200 * time.Millisecond,
		},
		ProfileSafe: {
			Name:           ProfileSafe,
			MinInterval:    8 * time.Second,
			PenaltyInitial: 30 * time.Second,
			PenaltyMax:     240 * time.Second,
			CooldownAfter:  3,
			Cooldown:       180 * time.Second,
			SuccessDelay:   6 * time.Second,
			JitterMax:      1500 * time.Millisecond,
		},
		ProfileUltra: {
			Name:           ProfileUltra,
			MinInterval:    10 * time.Second,
			PenaltyInitial: 45 * time.Second,
			PenaltyMax:     300 * time.Second,
			CooldownAfter:  2,
			Cooldown:       240 * time.Second,
			SuccessDelay:   8 * time.Second,
			JitterMax:      2 * time.Second,
		},
	}
}

// profileFile is the yaml override document. Durations are seconds so
// the file stays hand-editable; zero fields keep the built-in value.
type profileFile struct {
	Profiles map[string]struct {
		MinIntervalS    float64 `yaml:"min_interval_s"`
		PenaltyInitialS float64 `yaml:"penalty_initial_s"`
		PenaltyMaxS     float64 `yaml:"penalty_max_s"`
		CooldownAfter   int     `yaml:"cooldown_after"`
		CooldownS       float64 `yaml:"cooldown_s"`
		SuccessDelayS   float64 `yaml:"success_delay_s"`
		JitterMaxS      float64 `yaml:"jitter_max_s"`
	} `yaml:"profiles"`
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// LoadProfile resolves a profile by name, applying overrides from the
// yaml file at path when it exists. An empty path skips overrides.
func LoadProfile(name, path string) (Profile, error) {
	profiles := builtinProfiles()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err == nil {
			var pf profileFile
			if err := yaml.Unmarshal(raw, &pf); err != nil {
				return Profile{}, eris.Wrap(err, "ratelimit: parse profile overrides")
			}
			for pname, o := range pf.Profiles {
				p, ok := profiles[pname]
				if !ok {
					p = profiles[ProfileSafe]
					p.Name = pname
				}
				if o.MinIntervalS > 0 {
					p.MinInterval = seconds(o.MinIntervalS)
				}
				if o.PenaltyInitialS > 0 {
					p.PenaltyInitial = seconds(o.PenaltyInitialS)
				}
				if o.PenaltyMaxS > 0 {
					p.PenaltyMax = seconds(o.PenaltyMaxS)
				}
				if o.CooldownAfter > 0 {
					p.CooldownAfter = o.CooldownAfter
				}
				if o.CooldownS > 0 {
					p.Cooldown = seconds(o.CooldownS)
				}
				if o.SuccessDelayS > 0 {
					p.SuccessDelay = seconds(o.SuccessDelayS)
				}
				if o.JitterMaxS > 0 {
					p.JitterMax = seconds(o.JitterMaxS)
				}
				profiles[pname] = p
			}
		} else if !os.IsNotExist(err) {
			return Profile{}, eris.Wrap(err, "ratelimit: read profile overrides")
		}
	}

	p, ok := profiles[name]
	if !ok {
		return Profile{}, eris.Errorf("ratelimit: unknown profile %q", name)
	}
	return p, nil
}
