package config

import "strings"

// FeatureFlags toggles optional surfaces without a redeploy of the code.
type FeatureFlags struct {
	// Posts the "one hour left" warning before each leaderboard post.
	Reminders bool `env:"FEATURE_REMINDERS" envDefault:"true"`

	// Registers /gap and exposes the gap endpoint.
	GapTrend bool `env:"FEATURE_GAP_TREND" envDefault:"true"`

	// Accepts POST /webhook as an alias of POST /api/steps.
	LegacyWebhook bool `env:"FEATURE_LEGACY_WEBHOOK" envDefault:"true"`

	// Exposes the read-only guild endpoints.
	ReadAPI bool `env:"FEATURE_READ_API" envDefault:"true"`
}

// Feature names accepted by IsEnabled.
const (
	FeatureReminders     = "reminders"
	FeatureGapTrend      = "gap_trend"
	FeatureLegacyWebhook = "legacy_webhook"
	FeatureReadAPI       = "read_api"
)

// IsEnabled looks a flag up by name. Unknown names are disabled.
func (f FeatureFlags) IsEnabled(name string) bool {
	switch strings.ToLower(name) {
	case FeatureReminders:
		return f.Reminders
	case FeatureGapTrend:
		return f.GapTrend
	case FeatureLegacyWebhook:
		return f.LegacyWebhook
	case FeatureReadAPI:
		return f.ReadAPI
	default:
		return false
	}
}

// Enabled lists every enabled flag, for the startup log line.
func (f FeatureFlags) Enabled() []string {
	var out []string
	for _, name := range []string{FeatureReminders, FeatureGapTrend, FeatureLegacyWebhook, FeatureReadAPI} {
		if f.IsEnabled(name) {
			out = append(out, name)
		}
	}
	return out
}
