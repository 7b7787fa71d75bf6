package driver

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadConfig loads a driver Config from a JSON file. Fields absent from
// the file keep their default values.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read driver config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("failed to parse driver config: %w", err)
	}

	return config, nil
}
