// Package config loads and validates the bridge configuration from JSON
// or YAML files and maps it onto the gateway settings.
package config
