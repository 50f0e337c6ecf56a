package config

const (
	defaultConfigPath          = "~/.config/shelfmind/config.toml"
	defaultStateDir            = "~/.local/share/shelfmind"
	defaultDatabaseName        = "shelfmind.db"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultWeighting           = WeightingRatingXAge
	defaultCatalogProvider     = "none"
	defaultNarratorProvider    = "none"
	defaultNtfyRequestTimeout  = 10
	defaultOpenAIModel         = "gpt-4o-mini"
	defaultOllamaModel         = "llama3.1"
	defaultCatalogTimeout      = 10
	defaultCatalogConcurrency  = 4
	defaultNarratorTimeout     = 20
	defaultDaemonPollInterval  = 60
	defaultSM2Timezone         = "UTC"
	defaultCheckpointInterval  = 7
	defaultRecomputerTickHour  = 2
	defaultDaemonDecayHour     = 3
	defaultDecayFraction       = 0.05
	defaultDecayInactivityDays = 7
)

// Profile weighting modes.
const (
	WeightingRatingXAge = "rating_x_age"
	WeightingRating     = "rating"
	WeightingAge        = "age"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Profile: Profile{
			HalfLifeDays:      365,
			MinWeight:         0.25,
			MinWeightedEvents: 5.0,
			Weighting:         defaultWeighting,
			ThemeMinCount:     3,
			TopThemes:         10,
			StyleMinCount:     3,
			LengthWindow:      20,
			LengthSmoothing:   0.8,
		},
		Scorer: Scorer{
			Weights:           []float64{0.25, 0.25, 0.20, 0.20, 0.10},
			Thresholds:        []int{75, 50, 25},
			GapThreshold:      60,
			StrengthThreshold: 80,
		},
		Recomputer: Recomputer{
			MinCheckpointIntervalDays: defaultCheckpointInterval,
			TickHour:                  defaultRecomputerTickHour,
			NotifyOnTick:              true,
		},
		Decay: Decay{
			DefaultFraction:       defaultDecayFraction,
			DefaultInactivityDays: defaultDecayInactivityDays,
			Floor:                 1,
		},
		Plan: Plan{
			MinSize:                    2,
			MaxSize:                    5,
			MinBookScore:               60,
			ReaderPaceFloorPagesPerDay: 30,
			AssumedRating:              5,
			PaceWindowDays:             90,
		},
		SM2: SM2{
			EaseFloorScaled:               1300,
			EaseDeltaPerQualityStepScaled: 280,
			InitialEaseScaled:             2500,
			EaseCeilingScaled:             2500,
			Timezone:                      defaultSM2Timezone,
		},
		Targets: Targets{
			AutoPromoteOnCompletion: true,
		},
		Catalog: Catalog{
			Provider:       defaultCatalogProvider,
			TimeoutSeconds: defaultCatalogTimeout,
			Concurrency:    defaultCatalogConcurrency,
		},
		Narrator: Narrator{
			Provider:       defaultNarratorProvider,
			TimeoutSeconds: defaultNarratorTimeout,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
			BecameReady:    true,
		},
		Daemon: Daemon{
			DecayHour:           defaultDaemonDecayHour,
			PollIntervalSeconds: defaultDaemonPollInterval,
		},
	}
}
