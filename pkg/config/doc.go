// Package config loads builder configuration from defaults, an
// optional YAML file, and environment variables, in that order of
// precedence. The GitHub token is read only from GITHUB_TOKEN so that
// credentials never land in config files.
package config
