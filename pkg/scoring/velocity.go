// Package scoring implements the per-request threat signals: a velocity score
// from request-timestamp density, a diversity score from consecutive-query
// embedding similarity, their weighted hybrid, and the tier state machine
// that maps score and escalation duration onto a response tier.
package scoring

import (
	"time"
)

const (
	// DefaultRPMCeiling is the requests-per-minute rate that saturates the
	// velocity signal at 1.0.
	DefaultRPMCeiling = 30.0

	// VelocityWindow is the trailing window considered when estimating the
	// request rate.
	VelocityWindow = 5 * time.Minute
)

// RequestsPerMinute estimates the identity's request rate from its timestamp
// ring. Only entries within the trailing VelocityWindow from now count; fewer
// than 2 in-window points give no velocity signal. The elapsed span between
// the oldest and newest in-window entries is floored at one minute so bursts
// of near-simultaneous requests cannot blow the division up.
//
// This is a density estimate, not a true rate: a burst of exactly 2 requests
// spaced far apart within the window under-reports.
func RequestsPerMinute(timestamps []time.Time, now time.Time) float64 {
	if len(timestamps) < 2 {
		return 0
	}

	cutoff := now.Add(-VelocityWindow)
	var recent []time.Time
	for _, ts := range timestamps {
		if !ts.Before(cutoff) {
			recent = append(recent, ts)
		}
	}
	if len(recent) < 2 {
		return 0
	}

	spanMinutes := recent[len(recent)-1].Sub(recent[0]).Minutes()
	if spanMinutes < 1.0 {
		spanMinutes = 1.0
	}
	return float64(len(recent)) / spanMinutes
}

// VelocityScore maps an RPM value to the bounded [0,1] velocity signal.
// Monotonically non-decreasing in rpm. Ceilings <= 0 fall back to the default.
func VelocityScore(rpm, ceiling float64) float64 {
	if ceiling <= 0 {
		ceiling = DefaultRPMCeiling
	}
	score := rpm / ceiling
	if score > 1.0 {
		return 1.0
	}
	if score < 0 {
		return 0
	}
	return score
}
