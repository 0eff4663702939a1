package cron

import (
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/dailyyoga/cronkit/logger"
	"github.com/go-viper/mapstructure/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Properties are startup key/value pairs for one backend. Values may be
// native Go values or their string forms ("30s", "true", "4").
type Properties map[string]any

// Merge returns a copy of p overlaid with over.
func (p Properties) Merge(over Properties) Properties {
	out := make(Properties, len(p)+len(over))
	maps.Copy(out, p)
	maps.Copy(out, over)
	return out
}

// Decode overlays p onto out, a pointer to a config struct already holding
// its defaults. Keys absent from p keep their defaults; keys out does not
// know are logged and ignored.
func (p Properties) Decode(out any, log logger.Logger) error {
	if len(p) == 0 {
		return nil
	}
	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		Metadata:         &md,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("cron: build properties decoder: %w", err)
	}
	if err := dec.Decode(map[string]any(p)); err != nil {
		return fmt.Errorf("cron: decode properties: %w", err)
	}
	if len(md.Unused) > 0 {
		slices.Sort(md.Unused)
		logger.OrNop(log).Warn("ignoring unknown startup properties", zap.Strings("keys", md.Unused))
	}
	return nil
}

// LoadProperties reads a YAML mapping from path.
func LoadProperties(path string) (Properties, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cron: read properties %s: %w", path, err)
	}
	return ParseProperties(b)
}

// ParseProperties parses a YAML mapping.
func ParseProperties(b []byte) (Properties, error) {
	props := Properties{}
	if err := yaml.Unmarshal(b, &props); err != nil {
		return nil, fmt.Errorf("cron: parse properties: %w", err)
	}
	return props, nil
}
