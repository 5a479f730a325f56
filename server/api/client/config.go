package client

import (
	"fmt"
	"net/url"

	"github.com/spf13/pflag"
)

type Config struct {
	// URL is the node API server URL.
	URL string `json:"url"`
}

func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("missing url")
	}
	if _, err := url.Parse(c.URL); err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	return nil
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(
		&c.URL,
		"api.url",
		"http://localhost:11311",
		`
meshmaster node API URL.
`,
	)
}
