package schema

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// Decode copies a repaired record into a typed struct using its json tags.
func Decode(rec Record, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("build decoder: %w", err)
	}
	if err := dec.Decode(map[string]any(rec)); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}
