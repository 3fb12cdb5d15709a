package analytics

import (
	"context"
	"fmt"
	"strings"
)

// Collaborator turns a timeout analysis into actionable recommendations.
// The production deployment may plug in an external advisory service; the
// shipped implementation is the rule table below.
type Collaborator interface {
	Advise(ctx context.Context, analysis *TimeoutAnalysis) ([]Recommendation, error)
}

// RuleBased is the built-in Collaborator: a fixed rule table over the
// analysis thresholds.
type RuleBased struct {
	cfg Config
}

// NewRuleBased creates the built-in rule-table collaborator.
func NewRuleBased(cfg Config) *RuleBased {
	return &RuleBased{cfg: cfg}
}

// Advise implements Collaborator.
func (r *RuleBased) Advise(_ context.Context, analysis *TimeoutAnalysis) ([]Recommendation, error) {
	return r.cfg.Recommend(analysis), nil
}

// Recommend derives the recommendation list from a completed analysis.
func (c Config) Recommend(analysis *TimeoutAnalysis) []Recommendation {
	recommendations := []Recommendation{}

	if analysis.TimeoutRatePct > c.RiskHighPct {
		recommendations = append(recommendations, Recommendation{
			Priority:       "CRITICAL",
			Category:       "System Configuration",
			Issue:          fmt.Sprintf("High timeout rate: %.1f%%", analysis.TimeoutRatePct),
			Recommendation: "Immediately increase business-app session timeout settings from default 5 minutes to 15-20 minutes",
			ExpectedImpact: "60-80% reduction in timeout incidents",
			Implementation: "Update application server configuration or group policy",
		})
	}

	peaks := []string{}
	for _, h := range analysis.HourlyPatterns {
		if h.TimeoutRatePct > c.PeakHourRatePct && h.BusinessSamples > c.MinHourSamples {
			peaks = append(peaks, fmt.Sprintf("%02d:00", h.Hour))
		}
	}
	if len(peaks) > 0 {
		recommendations = append(recommendations, Recommendation{
			Priority:       "HIGH",
			Category:       "Operational Scheduling",
			Issue:          "Peak timeout hours: " + strings.Join(peaks, ", "),
			Recommendation: "Schedule system maintenance outside peak hours and consider staggered break times",
			ExpectedImpact: "30-50% reduction in peak-hour timeouts",
			Implementation: "Adjust staff schedules and system maintenance windows",
		})
	}

	problemDevices := 0
	for _, d := range analysis.DeviceImpact {
		if d.TimeoutRatePct > c.DeviceRateHighPct {
			problemDevices++
		}
	}
	if problemDevices > 0 {
		recommendations = append(recommendations, Recommendation{
			Priority:       "MEDIUM",
			Category:       "Hardware Maintenance",
			Issue:          fmt.Sprintf("%d devices with high timeout rates", problemDevices),
			Recommendation: "Investigate hardware performance and network connectivity for specific devices",
			ExpectedImpact: "Eliminate device-specific timeout issues",
			Implementation: "Hardware diagnostics and potential replacement",
		})
	}

	if analysis.Impact.ProductivityLossHours > c.LossAlertHours {
		recommendations = append(recommendations, Recommendation{
			Priority:       "HIGH",
			Category:       "Business Process",
			Issue:          fmt.Sprintf("%.2f hours lost in the analysis window", analysis.Impact.ProductivityLossHours),
			Recommendation: "Implement auto-save functionality and session recovery procedures",
			ExpectedImpact: "90% reduction in work loss from timeouts",
			Implementation: "Application configuration and user training",
		})
	}

	return recommendations
}
