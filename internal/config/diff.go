package config

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// AssistantChanged is set when model, voice or instructions changed.
	// These apply from the next session.
	AssistantChanged bool

	// RestartRequired names sections that changed but are only read at
	// start-up (listen address, store, devices, provider, credentials).
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.AssistantChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oa, na := old.Assistant, new.Assistant
	if oa.Model != na.Model || oa.Voice != na.Voice || oa.Instructions != na.Instructions {
		d.AssistantChanged = true
	}

	restart := func(section string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, section)
		}
	}
	restart("server", old.Server.ListenAddr != new.Server.ListenAddr ||
		old.Server.LogFormat != new.Server.LogFormat ||
		!sameTLS(old.Server.TLS, new.Server.TLS))
	restart("assistant.provider", oa.Provider != na.Provider || oa.APIKey != na.APIKey || oa.BaseURL != na.BaseURL)
	restart("store", old.Store != new.Store)
	restart("devices", old.Devices != new.Devices)
	restart("video", old.Video != new.Video)
	restart("tools", old.Tools != new.Tools)

	return d
}

func sameTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
