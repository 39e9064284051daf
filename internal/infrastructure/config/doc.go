// Package config provides configuration loading for the EOT cloud bridge.
//
// Configuration is loaded from a YAML file with environment variable
// overrides for secrets and deployment-specific values. Validation runs
// on every load so a misconfigured bridge fails fast at startup instead
// of half-connecting to the vendor cloud.
//
// # Loading Order
//
//  1. Hardcoded defaults
//  2. YAML file (configs/config.yaml by default)
//  3. EOTBRIDGE_* environment variables
//
// Credentials (auth.username, auth.password) should always come from the
// environment in production deployments.
package config
