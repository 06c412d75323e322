package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/kilupskalvis/skedits/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_LevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("warn", "json", &buf)

	logger.Info("hidden")
	logger.Warn("shown", "root_id", 42)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, float64(42), entry["root_id"])
}

func TestNewLogger_DefaultsToTextInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("loud", "", &buf)

	logger.Debug("hidden")
	logger.Info("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown")
}

func TestParseRoot(t *testing.T) {
	id, err := parseRoot(" 864691135 ")
	require.NoError(t, err)
	assert.Equal(t, models.SegmentID(864691135), id)

	for _, bad := range []string{"", "0", "-1", "abc"} {
		_, err := parseRoot(bad)
		assert.Error(t, err, bad)
	}
}

func TestReadRoots(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roots.txt")
	require.NoError(t, os.WriteFile(path, []byte("# proofread\n12\n\n7\n12\n"), 0644))

	roots, err := readRoots(path)
	require.NoError(t, err)
	assert.Equal(t, []models.SegmentID{12, 7, 12}, roots)

	require.NoError(t, os.WriteFile(path, []byte("12\nx\n"), 0644))
	_, err = readRoots(path)
	assert.ErrorContains(t, err, "roots.txt:2")
}
