package storyboard

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Write writes a storyboard to a YAML file
func Write(board *Storyboard, path string) error {
	data, err := yaml.Marshal(board)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Read reads a storyboard from a YAML file and normalizes it
func Read(path string) (*Storyboard, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var board Storyboard
	if err := yaml.Unmarshal(data, &board); err != nil {
		return nil, err
	}

	board.Normalize()
	return &board, nil
}
