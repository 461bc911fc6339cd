package report

// Config holds configuration for run report output.
type Config struct {
	// Dir is the local directory run reports are written to.
	Dir string `mapstructure:"dir" default:"./reports"`
	// Upload enables pushing each report to object storage as well.
	Upload bool `mapstructure:"upload" default:"false"`
}
