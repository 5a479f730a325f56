package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func readRecords(t *testing.T, path string) []map[string]interface{} {
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var records []map[string]interface{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var record map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &record))
		records = append(records, record)
	}
	return records
}

func TestLogger_Level(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	l, err := newLogger("warn", nil, path)
	require.NoError(t, err)

	l.Debug("debug")
	l.Info("info")
	l.Warn("warn", zap.String("peer", "10.26.104.14:11411"))
	l.Error("error")
	require.NoError(t, l.Sync())

	records := readRecords(t, path)
	require.Len(t, records, 2)
	assert.Equal(t, "warn", records[0]["msg"])
	assert.Equal(t, "10.26.104.14:11411", records[0]["peer"])
	assert.Equal(t, "main", records[0]["subsystem"])
	assert.Equal(t, "error", records[1]["msg"])
}

func TestLogger_Subsystems(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	l, err := newLogger("error", []string{"gossip"}, path)
	require.NoError(t, err)

	gossipLogger := l.WithSubsystem("gossip")
	assert.Equal(t, "gossip", gossipLogger.Subsystem())

	gossipLogger.Debug("gossip debug")
	l.WithSubsystem("cluster").Debug("cluster debug")
	l.StdLogger(zapcore.DebugLevel).Print("std debug")
	require.NoError(t, l.Sync())

	records := readRecords(t, path)
	require.Len(t, records, 1)
	assert.Equal(t, "gossip debug", records[0]["msg"])
	assert.Equal(t, "gossip", records[0]["subsystem"])
}

func TestLogger_InvalidLevel(t *testing.T) {
	_, err := NewLogger(Config{Level: "trace"})
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, (&Config{Level: "info"}).Validate())
	assert.Error(t, (&Config{}).Validate())
	assert.Error(t, (&Config{Level: "verbose"}).Validate())
}
