package memdep

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config holds configuration for the memory dependence unit.
type Config struct {
	// NumThreads is the number of hardware thread contexts sharing the
	// unit. Each context gets its own instruction order list. Default: 1.
	NumThreads int `json:"num_threads"`

	// StoreBarrierBlocksLoads selects the memory-model strictness for
	// store barriers. When true, an outstanding store barrier gates
	// younger loads in addition to younger stores. Default: true.
	StoreBarrierBlocksLoads bool `json:"store_barrier_blocks_loads"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		NumThreads:              1,
		StoreBarrierBlocksLoads: true,
	}
}

// LoadConfig loads a Config from a JSON file. Fields absent from the
// file keep their default values.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read memdep config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("failed to parse memdep config: %w", err)
	}

	return config, nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.NumThreads <= 0 {
		return fmt.Errorf("num_threads must be > 0")
	}
	return nil
}
