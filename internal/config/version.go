package config

// Version is the cadence binary version.
// Set at build time via: -ldflags "-X github.com/persistorai/cadence/internal/config.Version=<tag>"
// Defaults to "dev" when built without ldflags.
var Version = "dev"
