package config

import "fmt"

// ExtensionsConfig controls extension discovery.
type ExtensionsConfig struct {
	Dir      string   `yaml:"dir"`      // directory of manifest files
	Disabled []string `yaml:"disabled"` // extension names that may not load
}

// EnvironmentConfig maps environment names to dotenv files. Only the key
// names of those files ever reach extensions.
type EnvironmentConfig struct {
	Active string            `yaml:"active"` // environment selected at start
	Files  map[string]string `yaml:"files"`  // name -> dotenv path
}

// Validate checks that the active environment has a file.
func (e EnvironmentConfig) Validate() error {
	if e.Active == "" {
		return nil
	}
	if _, ok := e.Files[e.Active]; !ok {
		return fmt.Errorf("environment.active %q has no entry in environment.files", e.Active)
	}
	return nil
}

// BridgeConfig configures the IPC WebSocket bridge. An empty address
// disables it.
type BridgeConfig struct {
	Addr           string   `yaml:"addr"`            // listen address, e.g. 127.0.0.1:7331
	OriginPatterns []string `yaml:"origin_patterns"` // allowed cross-origin hosts
}
