package config

const (
	defaultDataDir               = "~/.local/share/recast"
	defaultLogDir                = "~/.local/share/recast/logs"
	defaultMediaDir              = "~/.local/share/recast/media"
	defaultBind                  = "127.0.0.1:8091"
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultQueueBackend          = "auto"
	defaultQueuePollInterval     = 2
	defaultErrorRetryInterval    = 10
	defaultMaxAttempts           = 3
	defaultInitialBackoffSeconds = 5
	defaultScrapeConcurrency     = 3
	defaultAnalyzeConcurrency    = 5
	defaultTranslateConcurrency  = 3
	defaultGenerateConcurrency   = 2
	defaultPublishConcurrency    = 2
	defaultScraperBaseURL        = "https://api.apify.com/v2"
	defaultScraperActor          = "apify~instagram-post-scraper"
	defaultScraperResultsLimit   = 50
	defaultScraperPollInterval   = 10
	defaultScraperMaxWait        = 300
	defaultLLMBaseURL            = "https://api.openai.com/v1/chat/completions"
	defaultLLMModel              = "gpt-4o"
	defaultLLMTimeoutSeconds     = 60
	defaultImagesBaseURL         = "https://generativelanguage.googleapis.com/v1beta"
	defaultImagesModel           = "gemini-3-pro-image-preview"
	defaultImagesTimeoutSeconds  = 120
	defaultGraphBaseURL          = "https://graph.facebook.com/v22.0"
	defaultPublishPollInterval   = 5
	defaultPublishPollTimeout    = 60
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			LogDir:   defaultLogDir,
			MediaDir: defaultMediaDir,
			Bind:     defaultBind,
		},
		Queue: Queue{
			Backend:               defaultQueueBackend,
			PollInterval:          defaultQueuePollInterval,
			ErrorRetryInterval:    defaultErrorRetryInterval,
			MaxAttempts:           defaultMaxAttempts,
			InitialBackoffSeconds: defaultInitialBackoffSeconds,
			ScrapeConcurrency:     defaultScrapeConcurrency,
			AnalyzeConcurrency:    defaultAnalyzeConcurrency,
			TranslateConcurrency:  defaultTranslateConcurrency,
			GenerateConcurrency:   defaultGenerateConcurrency,
			PublishConcurrency:    defaultPublishConcurrency,
		},
		Scraper: Scraper{
			BaseURL:             defaultScraperBaseURL,
			Actor:               defaultScraperActor,
			ResultsLimit:        defaultScraperResultsLimit,
			PollIntervalSeconds: defaultScraperPollInterval,
			MaxWaitSeconds:      defaultScraperMaxWait,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Images: Images{
			BaseURL:        defaultImagesBaseURL,
			Model:          defaultImagesModel,
			TimeoutSeconds: defaultImagesTimeoutSeconds,
		},
		Publish: Publish{
			GraphBaseURL:        defaultGraphBaseURL,
			PollIntervalSeconds: defaultPublishPollInterval,
			PollTimeoutSeconds:  defaultPublishPollTimeout,
		},
		Scheduler: Scheduler{
			Enabled: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
