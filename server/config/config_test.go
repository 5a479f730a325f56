package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andydunstall/meshmaster/pkg/config"
	"github.com/andydunstall/meshmaster/pkg/log"
	"github.com/andydunstall/meshmaster/server/gossip"
)

// Tests the default configuration is valid.
func TestConfig_Default(t *testing.T) {
	conf := Default()
	assert.NoError(t, conf.Validate())
}

// Tests loading the server configuration from YAML.
func TestConfig_LoadYAML(t *testing.T) {
	yaml := `
node:
  name: node1_cluster

gossip:
  bind_addr: 10.15.104.25:11411
  advertise_addr: 1.2.3.4:11411
  peers:
    - 10.26.104.12:11411
    - node2.cluster:11411
  interval: 500ms
  accept_wait: 10ms
  dead_timeout: 10s
  dial_timeout: 2s
  write_timeout: 2s
  max_message_size: 1048576

api:
  bind_addr: localhost:9000

admin:
  bind_addr: 10.15.104.25:9001

log:
  level: debug
  subsystems:
    - gossip
    - cluster

grace_period: 2m
`

	path := filepath.Join(t.TempDir(), "meshmaster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	var loadedConf Config
	require.NoError(t, config.Load(&loadedConf, path, false))

	expectedConf := Config{
		Node: NodeConfig{
			Name: "node1_cluster",
		},
		Gossip: gossip.Config{
			BindAddr:      "10.15.104.25:11411",
			AdvertiseAddr: "1.2.3.4:11411",
			Peers: []string{
				"10.26.104.12:11411",
				"node2.cluster:11411",
			},
			Interval:       time.Millisecond * 500,
			AcceptWait:     time.Millisecond * 10,
			DeadTimeout:    time.Second * 10,
			DialTimeout:    time.Second * 2,
			WriteTimeout:   time.Second * 2,
			MaxMessageSize: 1048576,
		},
		API: APIConfig{
			BindAddr: "localhost:9000",
		},
		Admin: AdminConfig{
			BindAddr: "10.15.104.25:9001",
		},
		Log: log.Config{
			Level: "debug",
			Subsystems: []string{
				"gossip",
				"cluster",
			},
		},
		GracePeriod: 2 * time.Minute,
	}
	assert.Equal(t, expectedConf, loadedConf)
	assert.NoError(t, loadedConf.Validate())
}

// Tests loading the server configuration using flags.
func TestConfig_LoadFlags(t *testing.T) {
	args := []string{
		"--node.name", "node1_cluster",
		"--gossip.bind-addr", "10.15.104.25:11411",
		"--gossip.peers", "10.26.104.12:11411,node2.cluster:11411",
		"--gossip.interval", "500ms",
		"--gossip.dead-timeout", "10s",
		"--api.bind-addr", "localhost:9000",
		"--admin.bind-addr", "10.15.104.25:9001",
		"--log.level", "debug",
		"--grace-period", "2m",
	}

	conf := Default()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	conf.RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))

	assert.Equal(t, "node1_cluster", conf.Node.Name)
	assert.Equal(t, "10.15.104.25:11411", conf.Gossip.BindAddr)
	assert.Equal(t, []string{"10.26.104.12:11411", "node2.cluster:11411"}, conf.Gossip.Peers)
	assert.Equal(t, time.Millisecond*500, conf.Gossip.Interval)
	assert.Equal(t, time.Second*10, conf.Gossip.DeadTimeout)
	// Unset flags keep their defaults.
	assert.Equal(t, time.Second*5, conf.Gossip.DialTimeout)
	assert.Equal(t, "localhost:9000", conf.API.BindAddr)
	assert.Equal(t, "10.15.104.25:9001", conf.Admin.BindAddr)
	assert.Equal(t, "debug", conf.Log.Level)
	assert.Equal(t, 2*time.Minute, conf.GracePeriod)
	assert.NoError(t, conf.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(conf *Config)
	}{
		{
			name: "invalid peer",
			modify: func(conf *Config) {
				conf.Gossip.Peers = []string{"node2.cluster"}
			},
		},
		{
			name: "dead timeout less than interval",
			modify: func(conf *Config) {
				conf.Gossip.Interval = time.Second * 10
				conf.Gossip.DeadTimeout = time.Second * 5
			},
		},
		{
			name: "negative accept wait",
			modify: func(conf *Config) {
				conf.Gossip.AcceptWait = -time.Second
			},
		},
		{
			name: "missing api bind addr",
			modify: func(conf *Config) {
				conf.API.BindAddr = ""
			},
		},
		{
			name: "missing admin bind addr",
			modify: func(conf *Config) {
				conf.Admin.BindAddr = ""
			},
		},
		{
			name: "invalid log level",
			modify: func(conf *Config) {
				conf.Log.Level = "trace"
			},
		},
		{
			name: "missing grace period",
			modify: func(conf *Config) {
				conf.GracePeriod = 0
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := Default()
			tt.modify(conf)
			assert.Error(t, conf.Validate())
		})
	}
}
