package config

import (
	"log"
	"sort"
)

// Validate checks the config for unrecognized fields and logs warnings.
// Unknown fields never fail the load; they are reported and ignored.
func Validate(cfg *Config) {
	warnOverflow("config", cfg.Overflow)
	warnOverflow("backend", cfg.Backend.Overflow)
	warnOverflow("run_settings", cfg.Run.Overflow)
	if cfg.Redis != nil {
		warnOverflow("redis", cfg.Redis.Overflow)
	}
}

func warnOverflow(section string, overflow map[string]any) {
	if len(overflow) == 0 {
		return
	}
	keys := make([]string, 0, len(overflow))
	for k := range overflow {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		log.Printf("[WARNING] Unrecognized config field %s.%s — field will be ignored", section, k)
	}
}
