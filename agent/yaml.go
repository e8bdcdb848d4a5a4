package agent

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentrun/core"
)

// definitionFile is the on-disk shape of an agent definition document.
type definitionFile struct {
	Agents []core.AgentConfig `yaml:"agents"`
}

// LoadConfigs decodes agent definitions from a YAML document:
//
//	agents:
//	  - name: summarizer
//	    model: gpt-4o-mini
//	    instructions: Summarize the given text.
//	    capabilities: [word_count]
//
// Returned configs are not registered; pass them to Registry.Register so
// capability references are validated.
func LoadConfigs(r io.Reader) ([]core.AgentConfig, error) {
	var file definitionFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode agent definitions: %w", err)
	}
	return file.Agents, nil
}

// LoadConfigFile reads agent definitions from a YAML file on disk.
func LoadConfigFile(path string) ([]core.AgentConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open agent definitions: %w", err)
	}
	defer f.Close()
	return LoadConfigs(f)
}
