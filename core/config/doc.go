// Package config provides configuration management for Order Sync.
//
// It utilizes Viper for loading configuration from environment variables and
// an optional .env file.
//
// # Configuration Structure
//
// The Config struct is the central repository for all application settings, divided into subsections:
//   - Server: HTTP server settings (port, API key, upload limit)
//   - Database: MySQL/SQLite connection details
//   - Storage: S3/MinIO credentials and bucket settings for report artifacts
//   - Log: Logging level and format
//   - Tracker: remote issue tracker endpoint and credentials
//   - Identity: identity mapping backend selection
//   - Registry: product-to-project mapping file
//   - Report: run report output
//   - Sync: reconciliation run tuning
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Server.Port)
package config
