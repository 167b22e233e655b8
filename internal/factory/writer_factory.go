package factory

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"TrafficSentry/internal/config"
	"TrafficSentry/internal/model"
)

// WriterFactory builds a writer from its configuration.
type WriterFactory func(def config.WriterDef, interval time.Duration) (model.Writer, error)

// Output is a configured writer together with its type name.
type Output struct {
	Type   string
	Writer model.Writer
}

// registry holds the mapping of writer types to their factory functions.
var registry = make(map[string]WriterFactory)

// RegisterWriter registers a new writer type with its factory function.
func RegisterWriter(name string, factory WriterFactory) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("writer type '%s' already registered", name))
	}
	registry[name] = factory
}

// Registered returns the registered writer types in sorted order.
func Registered() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CreateWriters builds every enabled writer of the configuration. A writer that fails to
// initialise is logged and skipped; an unknown writer type is an error.
func CreateWriters(cfg *config.Config) ([]Output, error) {
	var outputs []Output
	for _, def := range cfg.Writers {
		if !def.Enabled {
			continue
		}

		factory, ok := registry[def.Type]
		if !ok {
			return nil, fmt.Errorf("unknown writer type: '%s'", def.Type)
		}

		interval, err := def.Interval()
		if err != nil {
			log.Warn().Str("writer", def.Type).Err(err).Msg("Invalid snapshot interval, skipping writer")
			continue
		}

		writer, err := factory(def, interval)
		if err != nil {
			log.Warn().Str("writer", def.Type).Err(err).Msg("Failed to create writer, skipping")
			continue
		}

		log.Info().Str("writer", def.Type).Dur("interval", interval).Msg("Writer created")
		outputs = append(outputs, Output{Type: def.Type, Writer: writer})
	}
	return outputs, nil
}
