// Package config loads metastates configuration.
//
// Load parses environment variables (and a .env file, when present) into any
// struct tagged for github.com/caarlos0/env, caching the result per type:
//
//	var app config.App
//	config.MustLoad(&app)
//
// Owner kinds and state types can be declared in YAML and turned into a
// states.Registry:
//
//	defs, err := config.LoadDefinitions("metastates.yaml")
//	if err != nil {
//		return err
//	}
//	reg, err := defs.NewRegistry()
package config
