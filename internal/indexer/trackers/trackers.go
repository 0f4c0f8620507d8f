// Package trackers contains the concrete tracker implementations. Site
// metadata (names, links, category mappings) lives in an embedded YAML file;
// the request and parse logic for each site lives in its own Go file.
package trackers

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/Appsum/JackettCore/internal/indexer"
	"github.com/Appsum/JackettCore/internal/protect"
	"github.com/Appsum/JackettCore/internal/webclient"
)

//go:embed defs.yml
var rawDefs []byte

// Definition is the static metadata for one tracker.
type Definition struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Link        string            `yaml:"link"`
	Type        string            `yaml:"type"` // public, private
	Categories  []CategoryMapping `yaml:"categorymappings"`
}

// CategoryMapping maps a site-native category ID to a universal category.
type CategoryMapping struct {
	ID   string `yaml:"id"`
	Cat  int    `yaml:"cat"`
	Desc string `yaml:"desc"`
}

type defsFile struct {
	Trackers []Definition `yaml:"trackers"`
}

// Deps carries the shared services a tracker needs.
type Deps struct {
	Client    webclient.Client
	Protector protect.Protector
	Logger    zerolog.Logger
}

// builders maps a definition ID to the constructor for its implementation.
// Every definition in defs.yml must have an entry here.
var builders = map[string]func(Definition, Deps) indexer.Indexer{
	"arcticscene": newArcticScene,
	"nimbuspeer":  newNimbusPeer,
}

// Definitions parses the embedded metadata file.
func Definitions() ([]Definition, error) {
	var f defsFile
	if err := yaml.Unmarshal(rawDefs, &f); err != nil {
		return nil, fmt.Errorf("parse tracker definitions: %w", err)
	}
	return f.Trackers, nil
}

// All constructs every tracker. A definition without a matching builder is a
// packaging mistake and fails the whole call.
func All(deps Deps) ([]indexer.Indexer, error) {
	defs, err := Definitions()
	if err != nil {
		return nil, err
	}

	out := make([]indexer.Indexer, 0, len(defs))
	for _, def := range defs {
		build, ok := builders[def.ID]
		if !ok {
			return nil, fmt.Errorf("tracker definition %q has no implementation", def.ID)
		}
		out = append(out, build(def, deps))
	}
	return out, nil
}

// resolveURL joins a site-relative path onto the tracker's base link.
func resolveURL(base, path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "magnet:") {
		return path
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
