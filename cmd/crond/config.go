package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dailyyoga/cronkit/ch"
	"github.com/dailyyoga/cronkit/cron"
	"github.com/dailyyoga/cronkit/cron/crontab"
	"github.com/dailyyoga/cronkit/cron/enterprise"
	"github.com/dailyyoga/cronkit/cron/minimal"
	"github.com/dailyyoga/cronkit/cron/platform"
	"github.com/dailyyoga/cronkit/kafka"
	"github.com/dailyyoga/cronkit/logger"
)

var backends = map[string]func() cron.Backend{
	crontab.Name:    crontab.Backend,
	enterprise.Name: enterprise.Backend,
	minimal.Name:    minimal.Backend,
	platform.Name:   platform.Backend,
}

// File is the daemon configuration file. The kafka and clickhouse sections
// are optional; each one present enables its listener.
type File struct {
	Backend    string
	Properties cron.Properties
	Log        *logger.Config
	Kafka      *KafkaConfig
	ClickHouse *ch.Config
	Tasks      []TaskConfig
}

// rawFile holds the sections before they are decoded over their defaults.
type rawFile struct {
	Backend    string          `mapstructure:"backend"`
	Properties cron.Properties `mapstructure:"properties"`
	Log        cron.Properties `mapstructure:"log"`
	Kafka      cron.Properties `mapstructure:"kafka"`
	ClickHouse cron.Properties `mapstructure:"clickhouse"`
	Tasks      []TaskConfig    `mapstructure:"tasks"`
}

// KafkaConfig enables the task event publisher.
type KafkaConfig struct {
	Producer  *kafka.ProducerConfig  `mapstructure:"producer"`
	Publisher *kafka.PublisherConfig `mapstructure:"publisher"`
}

// TaskConfig is one scheduled shell command.
type TaskConfig struct {
	Name    string `mapstructure:"name"`
	Spec    string `mapstructure:"spec"`
	Command string `mapstructure:"command"`
	// Timeout bounds a single run, 0 means unbounded
	Timeout time.Duration `mapstructure:"timeout"`
}

func loadFile(path string, log logger.Logger) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("crond: read config %s: %w", path, err)
	}
	return parseFile(b, log)
}

func parseFile(b []byte, log logger.Logger) (*File, error) {
	raw, err := cron.ParseProperties(b)
	if err != nil {
		return nil, err
	}
	rf := &rawFile{Backend: crontab.Name}
	if err := raw.Decode(rf, log); err != nil {
		return nil, err
	}

	f := &File{
		Backend:    rf.Backend,
		Properties: rf.Properties,
		Log:        logger.DefaultConfig(),
		Tasks:      rf.Tasks,
	}
	if err := rf.Log.Decode(f.Log, log); err != nil {
		return nil, err
	}
	if len(rf.Kafka) > 0 {
		f.Kafka = &KafkaConfig{
			Producer:  kafka.DefaultProducerConfig(),
			Publisher: kafka.DefaultPublisherConfig(),
		}
		if err := rf.Kafka.Decode(f.Kafka, log); err != nil {
			return nil, err
		}
	}
	if len(rf.ClickHouse) > 0 {
		f.ClickHouse = ch.DefaultConfig()
		f.ClickHouse.RecorderConfig = ch.DefaultRecorderConfig()
		if err := rf.ClickHouse.Decode(f.ClickHouse, log); err != nil {
			return nil, err
		}
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate checks the backend name and every task entry.
func (f *File) Validate() error {
	if _, ok := backends[f.Backend]; !ok {
		return fmt.Errorf("crond: unknown backend %q", f.Backend)
	}
	if err := f.Log.Validate(); err != nil {
		return err
	}
	if f.Kafka != nil {
		if err := f.Kafka.Producer.Validate(); err != nil {
			return err
		}
		if err := f.Kafka.Publisher.Validate(); err != nil {
			return err
		}
	}
	if f.ClickHouse != nil {
		if err := f.ClickHouse.Validate(); err != nil {
			return err
		}
	}

	names := make(map[string]struct{}, len(f.Tasks))
	var errs []error
	for i, t := range f.Tasks {
		switch {
		case t.Name == "":
			errs = append(errs, fmt.Errorf("crond: task %d has no name", i))
		case t.Spec == "":
			errs = append(errs, fmt.Errorf("crond: task %s has no spec", t.Name))
		case t.Command == "":
			errs = append(errs, fmt.Errorf("crond: task %s has no command", t.Name))
		case t.Timeout < 0:
			errs = append(errs, fmt.Errorf("crond: task %s has a negative timeout", t.Name))
		}
		if _, dup := names[t.Name]; dup && t.Name != "" {
			errs = append(errs, fmt.Errorf("crond: duplicate task name %s", t.Name))
		}
		names[t.Name] = struct{}{}
	}
	return errors.Join(errs...)
}

func (f *File) backend() cron.Backend {
	return backends[f.Backend]()
}
