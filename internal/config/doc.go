// Package config loads and saves the deployer settings.
//
// Settings come from a YAML file with DEPLOYER_* environment overrides; nested
// keys use underscores, so container.url is DEPLOYER_CONTAINER_URL.
package config
