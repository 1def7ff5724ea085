package cocoyolo

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDatasetConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), DatasetFileName)
	require.NoError(t, WriteDatasetConfig(path, NewDatasetConfig("/data/rail")))

	var raw map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(readFileString(t, path)), &raw))
	assert.Equal(t, map[string]interface{}{
		"path":  "/data/rail",
		"train": "images/train",
		"val":   "images/val",
		"test":  "images/test",
		"nc":    5,
		"names": []interface{}{"person", "vehicle", "animal", "equipment", "debris"},
	}, raw)

	cfg, err := ReadDatasetConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.NC)
	assert.Equal(t, ClassNames(), cfg.Names)
}

func TestDatasetConfigValidate(t *testing.T) {
	tests := map[string]func(*DatasetConfig){
		"nc mismatch":  func(c *DatasetConfig) { c.NC = 4 },
		"no names":     func(c *DatasetConfig) { c.Names, c.NC = nil, 0 },
		"empty name":   func(c *DatasetConfig) { c.Names[1] = "" },
		"missing path": func(c *DatasetConfig) { c.Path = "" },
		"missing val":  func(c *DatasetConfig) { c.Val = "" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := NewDatasetConfig("/data")
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
			assert.Error(t, WriteDatasetConfig(filepath.Join(t.TempDir(), "d.yaml"), cfg))
		})
	}

	cfg := NewDatasetConfig("/data")
	cfg.Test = ""
	assert.NoError(t, cfg.Validate())
}

func TestReadDatasetConfigErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadDatasetConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(dir, "bad.yaml")
	writeFile(t, path, "path: /data\ntrain: images/train\nval: images/val\nnc: 2\nnames: [a]\n")
	_, err = ReadDatasetConfig(path)
	assert.Error(t, err)
}
