package coordinator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

func writeJSONFile(outDir, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("coordinator.writeJSONFile: marshal %s: %w", name, err)
	}
	return writeFile(outDir, name, data)
}

func writeTextFile(outDir, name, content string) error {
	return writeFile(outDir, name, []byte(content))
}

func writeFile(outDir, name string, data []byte) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("coordinator.writeFile: mkdir %s: %w", outDir, err)
	}
	path := filepath.Join(outDir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("coordinator.writeFile: %s: %w", path, err)
	}
	return nil
}
