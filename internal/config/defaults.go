package config

const (
	defaultDataDir               = "~/.local/share/djenwatch"
	defaultLogDir                = "~/.local/share/djenwatch/logs"
	defaultDJENBaseURL           = "https://comunicaapi.pje.jus.br/api/v1"
	defaultDJENTimeoutSeconds    = 30
	defaultDJENPageSize          = 100
	defaultDJENUserAgent         = "djenwatch/dev"
	minPageDelayMS               = 500
	minCaseDelayMS               = 600
	minAnalysisDelayMS           = 500
	defaultSyncIntervalMinutes   = 60
	defaultSyncLookbackDays      = 30
	defaultAnalysisMaxPerPass    = 10
	defaultAnalysisCacheTTLHours = 24
	defaultAnalysisTextLimit     = 4000
	defaultLLMBaseURL            = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel              = "google/gemini-3-flash-preview"
	defaultLLMReferer            = "https://github.com/djenwatch/djenwatch"
	defaultLLMTitle              = "djenwatch"
	defaultLLMTimeoutSeconds     = 60
	defaultNotifyRequestTimeout  = 10
	defaultAPIBind               = "127.0.0.1:7489"
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		DJEN: DJEN{
			BaseURL:        defaultDJENBaseURL,
			TimeoutSeconds: defaultDJENTimeoutSeconds,
			PageSize:       defaultDJENPageSize,
			PageDelayMS:    minPageDelayMS,
			CaseDelayMS:    minCaseDelayMS,
			UserAgent:      defaultDJENUserAgent,
		},
		Sync: Sync{
			IntervalMinutes: defaultSyncIntervalMinutes,
			LookbackDays:    defaultSyncLookbackDays,
		},
		Analysis: Analysis{
			Enabled:       true,
			MaxPerPass:    defaultAnalysisMaxPerPass,
			DelayMS:       minAnalysisDelayMS,
			CacheTTLHours: defaultAnalysisCacheTTLHours,
			TextLimit:     defaultAnalysisTextLimit,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Notifications: Notifications{
			RequestTimeout:    defaultNotifyRequestTimeout,
			StageChanges:      true,
			NewCommunications: true,
			Errors:            true,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
