package log

import (
	"fmt"

	"github.com/spf13/pflag"
)

// Config configures the node logger.
type Config struct {
	// Level is the minimum level of records written: 'debug', 'info',
	// 'warn' or 'error'.
	Level string `json:"level" yaml:"level"`

	// Subsystems lists subsystems, such as 'gossip' or 'api', whose records
	// are written at every level regardless of Level.
	Subsystems []string `json:"subsystems" yaml:"subsystems"`
}

func (c *Config) Validate() error {
	if c.Level == "" {
		return fmt.Errorf("missing level")
	}
	if _, err := zapLevelFromString(c.Level); err != nil {
		return fmt.Errorf("level: %w", err)
	}
	return nil
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(
		&c.Level,
		"log.level",
		c.Level,
		`
Minimum log level to write, one of 'debug', 'info', 'warn' or 'error'.`,
	)
	fs.StringSliceVar(
		&c.Subsystems,
		"log.subsystems",
		c.Subsystems,
		`
Subsystems to log at every level, overriding '--log.level'.

Every record includes the 'subsystem' that wrote it, such as 'gossip',
'cluster', 'api' or 'admin'. For example, '--log.subsystems gossip' logs
each gossip round and connection without enabling debug logs for the rest
of the node.`,
	)
}
