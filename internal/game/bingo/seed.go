package bingo

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// yamlSeedFile is the top-level YAML structure for seed word files.
type yamlSeedFile struct {
	Words map[string][]string `yaml:"words"`
}

// LoadSeedWordsFromFile reads a seed word file.
//
// Precondition: path must point to a YAML file with a top-level "words" map.
// Postcondition: Returns the words keyed by language, or a non-nil error.
func LoadSeedWordsFromFile(path string) (map[Language][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed word file %s: %w", path, err)
	}
	return LoadSeedWordsFromBytes(data)
}

// LoadSeedWordsFromBytes parses seed words from YAML bytes.
//
// Postcondition: Every key of the result is a valid Language; returns an error
// naming the first unknown language otherwise.
func LoadSeedWordsFromBytes(data []byte) (map[Language][]string, error) {
	var file yamlSeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing seed word YAML: %w", err)
	}

	out := make(map[Language][]string, len(file.Words))
	for name, words := range file.Words {
		lang, err := ParseLanguage(name)
		if err != nil {
			return nil, fmt.Errorf("seed words: %w", err)
		}
		out[lang] = append(out[lang], words...)
	}
	return out, nil
}
