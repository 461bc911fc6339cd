package identity

// Config selects the identity backend. The backend is chosen once at startup;
// mixing backends across runs splits the identity history.
type Config struct {
	Backend     string `mapstructure:"backend" default:"database" validate:"oneof=database catalog"`
	CatalogPath string `mapstructure:"catalog_path" default:"./data/identity-catalog.json"`
}
