package clients

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type directoryFile struct {
	Clients []Client `yaml:"clients"`
}

// ParseYAML reads an onboarding file. Order in the file is directory order.
func ParseYAML(data []byte) ([]Client, error) {
	var file directoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse client directory: %w", err)
	}
	seen := make(map[string]struct{}, len(file.Clients))
	out := make([]Client, 0, len(file.Clients))
	for i, c := range file.Clients {
		if c.Name == "" {
			return nil, fmt.Errorf("client #%d has no name", i+1)
		}
		c = c.WithDefaults()
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("duplicate client id %q", c.ID)
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}

// FileDirectory serves a YAML file as a Directory. The file is re-read on
// every call so onboarding edits are picked up by the next run.
type FileDirectory struct {
	path string
}

func NewFileDirectory(path string) *FileDirectory {
	return &FileDirectory{path: path}
}

func (d *FileDirectory) ListClients(context.Context) ([]Client, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return nil, fmt.Errorf("read client directory: %w", err)
	}
	return ParseYAML(data)
}
