// Package config loads daemon configuration from YAML with environment
// variable overrides. See Default for the baked-in values and Load for
// the file + env merge order.
package config
