package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTmpConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeTmpConfig(t, `
otus-tap:
  general:
    leader_uri: https://leader.example.com
    leader_secret: s3cr3t
  node:
    hostname: tap-01
  performance:
    ethernet_broker_buffer_capacity: 2048
    wifi_broker_buffer_capacity: 1024
  protocols:
    tcp:
      reassembly_buffer_size: 65536
      session_timeout_seconds: 60
      pipeline_size: 4096
    arp:
      max_entries_per_mac: 16
  metrics:
    listen: ":9999"
  log:
    level: debug
    format: json
  control:
    socket: /tmp/otus-tap.sock
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://leader.example.com", cfg.General.LeaderURI)
	assert.Equal(t, "s3cr3t", cfg.General.LeaderSecret)
	assert.Equal(t, "tap-01", cfg.Node.Hostname)
	assert.NotEmpty(t, cfg.Node.ID)
	assert.Equal(t, 2048, cfg.Performance.EthernetBrokerBufferCapacity)
	assert.Equal(t, 1024, cfg.Performance.WifiBrokerBufferCapacity)
	assert.Equal(t, 65536, cfg.Protocols.TCP.ReassemblyBufferSize)
	assert.Equal(t, 60, cfg.Protocols.TCP.SessionTimeoutSeconds)
	assert.Equal(t, 4096, cfg.Protocols.TCP.PipelineSize)
	assert.Equal(t, 16, cfg.Protocols.ARP.MaxEntriesPerMAC)
	assert.Equal(t, ":9999", cfg.Metrics.Listen)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "/tmp/otus-tap.sock", cfg.Control.Socket)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTmpConfig(t, `
otus-tap:
  general:
    leader_uri: https://leader.example.com
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/run/otus-tap.sock", cfg.Control.Socket)
	assert.Equal(t, 8192, cfg.Performance.EthernetBrokerBufferCapacity)
	assert.Equal(t, 4096, cfg.Performance.WifiBrokerBufferCapacity)
	assert.Equal(t, 4096, cfg.Protocols.ARP.MaxEntriesPerMAC)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 10, cfg.Reporting.TickIntervalSeconds)
	assert.NotEmpty(t, cfg.Node.Hostname)
}

func TestLoadMissingLeaderURI(t *testing.T) {
	path := writeTmpConfig(t, `
otus-tap:
  node:
    hostname: tap-01
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadInvalidLogLevel(t *testing.T) {
	path := writeTmpConfig(t, `
otus-tap:
  general:
    leader_uri: https://leader.example.com
  log:
    level: verbose
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yml")
	assert.Error(t, err)
}

func TestValidateAndApplyDefaults_NodeIdentityDerived(t *testing.T) {
	cfg := &GlobalConfig{
		General: GeneralConfig{LeaderURI: "https://leader.example.com"},
		Log:     LogConfig{Level: "info", Format: "console"},
		Protocols: ProtocolsConfig{
			TCP: TCPConfig{ReassemblyBufferSize: 1024, SessionTimeoutSeconds: 30, PipelineSize: 128},
		},
	}

	require.NoError(t, cfg.ValidateAndApplyDefaults())
	assert.NotEmpty(t, cfg.Node.Hostname)
	assert.NotEmpty(t, cfg.Node.ID)
}
