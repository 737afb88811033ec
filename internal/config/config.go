// Package config handles loading and defaulting of the YAML
// configuration trees shared by every ABCD process.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// searchPathsFunc is overridden in tests to avoid depending on the
// developer's real filesystem.
var searchPathsFunc = DefaultSearchPaths

// DefaultSearchPaths returns the config file search order used when no
// explicit path is given: ./config.yaml, ~/.config/abcd/config.yaml,
// /config/config.yaml, /etc/abcd/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "abcd", "config.yaml"))
	}

	paths = append(paths, "/config/config.yaml") // container convention
	paths = append(paths, "/etc/abcd/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty it must
// exist. Otherwise DefaultSearchPaths is searched in order and the
// first existing path is returned.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	paths := searchPathsFunc()
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", paths)
}

// Endpoints describes the transport endpoints a process binds or
// connects to. Every process has a status/data publisher and a
// commands subscriber at minimum; fields left empty are not opened.
type Endpoints struct {
	// DataPublish is the bind endpoint for the PUB socket carrying
	// events/waveforms/histograms (e.g. "tcp://*:16180").
	DataPublish string `yaml:"data_publish"`
	// StatusPublish is the bind endpoint for the PUB socket carrying
	// status and lifecycle-event messages.
	StatusPublish string `yaml:"status_publish"`
	// CommandsPull is the bind endpoint for the PULL socket receiving
	// JSON commands.
	CommandsPull string `yaml:"commands_pull"`
	// DataSubscribe lists CONNECT endpoints this process subscribes
	// to for upstream data (events/waveforms).
	DataSubscribe []string `yaml:"data_subscribe"`
	// StatusSubscribe lists CONNECT endpoints this process subscribes
	// to for upstream status/events.
	StatusSubscribe []string `yaml:"status_subscribe"`
	// QueryReply is the bind endpoint for a REP socket answering
	// synchronous queries (only used by fifo).
	QueryReply string `yaml:"query_reply"`
}

// Channel is the minimal per-channel descriptor shared by every
// module's configuration tree: an id (or list of ids) and an enable
// flag. Module-specific config types embed or parallel this.
type Channel struct {
	ID     ChannelIDs `yaml:"id"`
	Enable bool       `yaml:"enable"`
}

// ChannelIDs accepts either a single integer or a list of integers in
// YAML, matching the "int|int[]" shape documented in spec §6.
type ChannelIDs []int

// UnmarshalYAML implements custom decoding for the int|int[] union.
func (c *ChannelIDs) UnmarshalYAML(value *yaml.Node) error {
	var single int
	if err := value.Decode(&single); err == nil {
		*c = ChannelIDs{single}
		return nil
	}
	var many []int
	if err := value.Decode(&many); err != nil {
		return fmt.Errorf("channel id: expected int or []int: %w", err)
	}
	*c = many
	return nil
}

// ReadYAML loads path, expands ${VAR} environment references, and
// unmarshals into dst. Unknown fields are ignored by the underlying
// yaml.v3 decoder; missing fields take the zero value, and callers are
// expected to apply documented defaults afterward.
func ReadYAML(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), dst); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
