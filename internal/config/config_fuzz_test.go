package config

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
)

// FuzzLoadConfig feeds arbitrary YAML through viper and LoadFrom. Anything
// LoadFrom accepts must satisfy Validate.
func FuzzLoadConfig(f *testing.F) {
	f.Add("server:\n  port: 1337\n  host: localhost\n")
	f.Add("server:\n  port: \"invalid_port\"\n")
	f.Add("server:\n  port: 65536\n")
	f.Add("server:\n  port: -1\n")
	f.Add("watcher:\n  debounce: -5ms\n")
	f.Add("logging:\n  level: loud\n")
	f.Add("malformed: yaml: content")
	f.Add("")

	f.Fuzz(func(t *testing.T, content string) {
		if len(content) > 50000 {
			t.Skip("config content too large")
		}

		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		if err := v.ReadConfig(strings.NewReader(content)); err != nil {
			return
		}

		cfg, err := LoadFrom(v)
		if err != nil {
			return
		}
		if err := Validate(cfg); err != nil {
			t.Errorf("LoadFrom accepted an invalid config: %v", err)
		}
		if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
			t.Errorf("port out of range: %d", cfg.Server.Port)
		}
		if cfg.Watcher.Debounce < 0 {
			t.Errorf("negative debounce: %s", cfg.Watcher.Debounce)
		}
	})
}
