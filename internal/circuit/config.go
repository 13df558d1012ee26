package circuit

import "time"

// BackoffConfig defines the pause after consecutive read failures.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines endpoint defaults.
type Config struct {
	ListenAddr     string
	ReadBufferSize int
	WriteTimeout   time.Duration
	PeerIdleAfter  time.Duration
	RespondToPings bool
	Backoff        BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		ListenAddr:     "127.0.0.1:13000",
		ReadBufferSize: 64 * 1024,
		WriteTimeout:   5 * time.Second,
		PeerIdleAfter:  60 * time.Second,
		RespondToPings: true,
		Backoff: BackoffConfig{
			InitialDelay: 10 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     time.Second,
			Jitter:       true,
		},
	}
}
