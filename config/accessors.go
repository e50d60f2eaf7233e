package config

import "time"

// Typed accessors over the flat key→value store, one per recognized key
// (spec.md §3). These let config.Store satisfy spooler.ConfigProvider and
// remote.Config directly without a separate adapter type.

// APIPort returns the TCP port the local HTTP API listens on.
func (s *Store) APIPort() int {
	return s.GetInt("apiPort", 3001)
}

// DefaultPrinter returns the printer used when a job specifies none.
func (s *Store) DefaultPrinter() string {
	return s.GetString("defaultPrinter", "")
}

// SetDefaultPrinter writes through the default printer selection.
func (s *Store) SetDefaultPrinter(name string) error {
	return s.Set("defaultPrinter", name)
}

// MaxRetries returns the upper bound on a job's retryCount.
func (s *Store) MaxRetries() int {
	return s.GetInt("maxRetries", 3)
}

// RetryDelay returns the delay observed between retry attempts.
func (s *Store) RetryDelay() time.Duration {
	return time.Duration(s.GetInt("retryDelay", 5000)) * time.Millisecond
}

// MaxQueueSize returns the active-queue capacity enforced by Enqueue.
func (s *Store) MaxQueueSize() int {
	return s.GetInt("maxQueueSize", 100)
}

// ServerBaseURL returns the command-center base URL; empty disables C7.
func (s *Store) ServerBaseURL() string {
	return s.GetString("serverBaseUrl", "")
}

// APIKey returns the credential sent on outbound remote requests.
func (s *Store) APIKey() string {
	return s.GetString("apiKey", "")
}

// SumatraPath returns the configured override for the Windows PDF print
// executable, if any.
func (s *Store) SumatraPath() string {
	return s.GetString("sumatraPath", "")
}
