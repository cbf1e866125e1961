package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yashubustudio/uptake/uptake"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestResolveConfig_Precedence(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, uptake.SaveConfig(cfgPath, uptake.Config{
		DataFile:  "file.csv",
		MaxLength: 64,
		MinWords:  uptake.IntOf(3),
		OutputCol: "from_file",
	}))

	var flags scoreFlags
	cmd := newScoreCmd(&flags)
	require.NoError(t, cmd.Flags().Parse([]string{
		"--config", cfgPath,
		"--max-length", "32",
	}))

	cfg, err := resolveConfig(cmd.Flags(), &flags, envMap(map[string]string{
		"UPTAKE_MAX_LENGTH": "48",
		"UPTAKE_MIN_WORDS":  "7",
	}))
	require.NoError(t, err)
	assert.Equal(t, "file.csv", cfg.DataFile)
	assert.Equal(t, 32, cfg.MaxLength, "flag beats env and file")
	assert.Equal(t, 7, cfg.MinWordCount(), "env beats file")
	assert.Equal(t, "from_file", cfg.OutputCol, "unset flag keeps file value")
	assert.Equal(t, uptake.DefaultHead, cfg.Model.Head)
}

func TestResolveConfig_ExplicitZeroMinWords(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, uptake.SaveConfig(cfgPath, uptake.Config{DataFile: "file.csv", MinWords: uptake.IntOf(3)}))

	var flags scoreFlags
	cmd := newScoreCmd(&flags)
	require.NoError(t, cmd.Flags().Parse([]string{"--config", cfgPath, "--student-min-words", "0"}))
	cfg, err := resolveConfig(cmd.Flags(), &flags, envMap(map[string]string{"UPTAKE_MIN_WORDS": "7"}))
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.MinWordCount())

	flags = scoreFlags{}
	cmd = newScoreCmd(&flags)
	require.NoError(t, cmd.Flags().Parse([]string{"--config", cfgPath}))
	cfg, err = resolveConfig(cmd.Flags(), &flags, envMap(map[string]string{"UPTAKE_MIN_WORDS": "0"}))
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.MinWordCount())
}

func TestResolveConfig_RequiresDataFile(t *testing.T) {
	var flags scoreFlags
	cmd := newScoreCmd(&flags)
	require.NoError(t, cmd.Flags().Parse([]string{"--config", filepath.Join(t.TempDir(), "none.json")}))
	_, err := resolveConfig(cmd.Flags(), &flags, envMap(nil))
	assert.ErrorContains(t, err, "--data-file")
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uptake.yaml")
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"config", "init", path})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), path)

	cfg, err := uptake.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, uptake.DefaultMaxLength, cfg.MaxLength)
	assert.Equal(t, "./models/uptake/model.onnx", cfg.Model.ModelPath)

	root = newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"config", "init", path})
	assert.Error(t, root.Execute())

	_, err = os.Stat(path)
	assert.NoError(t, err)
}
