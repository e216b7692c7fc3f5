package log

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, zerolog.DebugLevel, true)
	l = WithWallet(l, "w1")
	l.Info().Str("tx_hash", "0xab").Msg("signed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "w1", entry["wallet_id"])
	assert.Equal(t, "0xab", entry["tx_hash"])
	assert.Equal(t, "signed", entry["message"])
	assert.Contains(t, entry, "time")
}

func TestNew_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, zerolog.WarnLevel, true)
	l.Info().Msg("hidden")
	assert.Zero(t, buf.Len())
	l.Warn().Msg("shown")
	assert.NotZero(t, buf.Len())
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, zerolog.InfoLevel, false)
	l.Info().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.False(t, json.Valid(buf.Bytes()))
}

func TestInit_ComponentLoggers(t *testing.T) {
	require.NoError(t, Init("error", true, ""))
	assert.Equal(t, zerolog.ErrorLevel, Signer.GetLevel())
	assert.Equal(t, zerolog.ErrorLevel, Cosign.GetLevel())
}

func TestInit_BadLevel(t *testing.T) {
	assert.Error(t, Init("loud", false, ""))
}

func TestInit_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.log")
	require.NoError(t, Init("info", true, path))
	t.Cleanup(func() { Init("warn", false, "") })

	Sender.Info().Str("tx_hash", "0x01").Msg("sent")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "sender", entry["component"])
	assert.Equal(t, "0x01", entry["tx_hash"])
}
