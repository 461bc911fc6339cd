package registry

// Config holds configuration for the product registry.
type Config struct {
	// Path is the location of the product-to-project mapping file.
	Path string `mapstructure:"path" default:"./config/registry.json"`
}
