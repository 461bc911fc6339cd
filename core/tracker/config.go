package tracker

// Config holds configuration for the remote tracker connection.
type Config struct {
	// BaseURL is the tracker root, e.g. "https://op.example.com".
	BaseURL string `mapstructure:"base_url" default:""`
	// APIKey authenticates requests (basic auth, user "apikey").
	APIKey string `mapstructure:"api_key" default:""`
	// TimeoutSeconds bounds every single HTTP call.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"30"`
	// PageSize caps search result pages.
	PageSize int `mapstructure:"page_size" default:"100"`
}
