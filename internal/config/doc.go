// Package config provides configuration loading and validation for the
// pronunciation coach client and its companion backend.
// It handles YAML-based configuration with per-section validation and applies
// overrides from a .env file and the process environment.
package config
