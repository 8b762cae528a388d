package recovery

import (
	"fmt"
	"time"
)

const (
	DefaultMinGuardians     = 2
	DefaultMaxGuardians     = 7
	DefaultTimelock         = 24 * time.Hour
	DefaultInactivityPeriod = 365 * 24 * time.Hour
)

// Config holds the service limits and delays.
type Config struct {
	MinGuardians int
	MaxGuardians int

	// Timelock is the mandatory delay between initiating and completing a recovery
	Timelock time.Duration

	// DefaultInactivityPeriod applies when SetupInheritance is called with a zero period
	DefaultInactivityPeriod time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MinGuardians:            DefaultMinGuardians,
		MaxGuardians:            DefaultMaxGuardians,
		Timelock:                DefaultTimelock,
		DefaultInactivityPeriod: DefaultInactivityPeriod,
	}
}

// Validate checks the configuration is internally consistent.
func (c Config) Validate() error {
	if c.MinGuardians < 2 {
		return fmt.Errorf("min guardians must be at least 2, got %d", c.MinGuardians)
	}
	if c.MaxGuardians < c.MinGuardians {
		return fmt.Errorf("max guardians %d below min guardians %d", c.MaxGuardians, c.MinGuardians)
	}
	if c.Timelock < 0 {
		return fmt.Errorf("timelock cannot be negative")
	}
	if c.DefaultInactivityPeriod <= 0 {
		return fmt.Errorf("default inactivity period must be positive")
	}
	return nil
}
