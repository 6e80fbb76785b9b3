package main

import (
	"flag"
	"os"
)

// ServerConfig holds the server configuration
type ServerConfig struct {
	Addr       string
	ConfigFile string
	HistoryCSV string
	LogLevel   string
}

// configResolver defines how to resolve a single configuration value
type configResolver struct {
	flagName    string
	envVarName  string
	defaultVal  string
	description string
	setter      func(*ServerConfig, string)
}

// loadServerConfig loads server configuration from CLI flags and environment
// variables. Flags win over env vars, env vars over defaults.
func loadServerConfig() ServerConfig {
	cfg := ServerConfig{}

	resolvers := []configResolver{
		{
			flagName:    "addr",
			envVarName:  "SWARM_ADDR",
			defaultVal:  ":8080",
			description: "HTTP listen address (e.g. :8080, 0.0.0.0:8080)",
			setter:      func(c *ServerConfig, v string) { c.Addr = v },
		},
		{
			flagName:    "config-file",
			envVarName:  "SWARM_CONFIG_FILE",
			defaultVal:  "",
			description: "optional path to a YAML simulation config, layered over the built-in defaults",
			setter:      func(c *ServerConfig, v string) { c.ConfigFile = v },
		},
		{
			flagName:    "history-csv",
			envVarName:  "SWARM_HISTORY_CSV",
			defaultVal:  "",
			description: "optional path where the run history is written as CSV on shutdown",
			setter:      func(c *ServerConfig, v string) { c.HistoryCSV = v },
		},
		{
			flagName:    "log-level",
			envVarName:  "SWARM_LOG_LEVEL",
			defaultVal:  "info",
			description: "Log level: debug, info, warn, error",
			setter:      func(c *ServerConfig, v string) { c.LogLevel = v },
		},
	}

	flagVars := make(map[string]*string)
	for _, resolver := range resolvers {
		flagVars[resolver.flagName] = flag.String(resolver.flagName, "", resolver.description)
	}
	flag.Parse()

	for _, resolver := range resolvers {
		var value string
		if *flagVars[resolver.flagName] != "" {
			value = *flagVars[resolver.flagName]
		} else if envValue := os.Getenv(resolver.envVarName); envValue != "" {
			value = envValue
		} else {
			value = resolver.defaultVal
		}
		resolver.setter(&cfg, value)
	}

	return cfg
}
