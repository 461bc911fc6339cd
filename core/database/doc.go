// Package database handles database connections.
//
// It provides a wrapper around GORM (Go Object Relational Mapping) to properly
// configure MySQL or SQLite connections based on the application's
// configuration. The database backs the identity mapping tables and the
// ingested source row store.
//
// # Connect
//
// The generic Connect function establishes a connection to the configured
// database, applies pool settings and verifies reachability with a ping.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    log.Fatal("Database connection failed", err)
//	}
package database
