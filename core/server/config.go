package server

// Config holds configuration for the HTTP upload/run service.
type Config struct {
	// Port is the port where the server will listen.
	Port string `mapstructure:"port" default:"8080"`
	// ApiKey is the secret key required to access the API.
	ApiKey string `mapstructure:"api_key" default:""`
	// MaxUploadMB caps the accepted workbook upload size.
	MaxUploadMB int `mapstructure:"max_upload_mb" default:"25"`
}

// BodyLimit returns the Fiber body limit in bytes.
func (c Config) BodyLimit() int {
	mb := c.MaxUploadMB
	if mb <= 0 {
		mb = 25
	}
	return mb * 1024 * 1024
}
