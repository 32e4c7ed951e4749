package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only the log level and the next-session live settings apply without a
// restart; every other changed field is listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	VoiceChanged        bool
	InstructionsChanged bool

	// RestartRequired names changed fields that only take effect on restart.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.VoiceChanged && !d.InstructionsChanged && len(d.RestartRequired) == 0
}

// LiveChanged reports whether the next live session should use new settings.
func (d ConfigDiff) LiveChanged() bool {
	return d.VoiceChanged || d.InstructionsChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	d.VoiceChanged = old.Live.Voice != new.Live.Voice
	d.InstructionsChanged = old.Live.Instructions != new.Live.Instructions

	restart := func(field string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, field)
		}
	}
	restart("server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr)
	restart("server.tls", !tlsEqual(old.Server.TLS, new.Server.TLS))
	restart("providers.s2s", !entryEqual(old.Providers.S2S, new.Providers.S2S))
	restart("providers.audio", !entryEqual(old.Providers.Audio, new.Providers.Audio))
	restart("providers.refiners", !slices.EqualFunc(old.Providers.Refiners, new.Providers.Refiners, entryEqual))
	restart("live.capture_block_size", old.Live.CaptureBlockSize != new.Live.CaptureBlockSize)
	restart("live.send_queue_size", old.Live.SendQueueSize != new.Live.SendQueueSize)
	restart("live.input_sample_rate", old.Live.InputSampleRate != new.Live.InputSampleRate)
	restart("live.output_sample_rate", old.Live.OutputSampleRate != new.Live.OutputSampleRate)
	restart("live.connect_timeout", old.Live.ConnectTimeout != new.Live.ConnectTimeout)
	restart("store.postgres_dsn", old.Store.PostgresDSN != new.Store.PostgresDSN)
	restart("report", old.Report != new.Report)

	return d
}

// entryEqual ignores Options, which are not comparable; provider options
// are read only at construction.
func entryEqual(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL && a.Model == b.Model
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
