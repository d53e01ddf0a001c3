// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// Credentials are usually kept in a .env file next to the config or in the
// working directory; it is loaded first and never overrides variables that
// are already set.
package config
