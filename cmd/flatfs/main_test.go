package main

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-flatfs/ftable"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	var out bytes.Buffer
	app := newApp()
	app.Reader = strings.NewReader(stdin)
	app.Writer = &out
	app.ErrWriter = io.Discard
	err := app.Run(append([]string{"flatfs"}, args...))
	return out.String(), err
}

func setupImage(t *testing.T) string {
	image := filepath.Join(t.TempDir(), "vol.img")
	t.Setenv("FLATFS_CONFIG_FILE", "")
	t.Setenv("FLATFS_IMAGE", image)
	t.Setenv("FLATFS_TOTAL_BLOCKS", "200")
	t.Setenv("FLATFS_FILES", "8")
	return image
}

func TestPutCat(t *testing.T) {
	assert := assert.New(t)
	setupImage(t)

	_, err := run(t, "", "format")
	require.NoError(t, err)
	_, err = run(t, "hello", "put", "a.txt")
	require.NoError(t, err)
	_, err = run(t, " world", "put", "--append", "a.txt")
	require.NoError(t, err)

	out, err := run(t, "", "cat", "a.txt")
	assert.NoError(err)
	assert.Equal("hello world", out)

	out, err = run(t, "", "ls")
	assert.NoError(err)
	assert.Equal("a.txt\n", out)

	out, err = run(t, "", "stat")
	assert.NoError(err)
	assert.Contains(out, "files: 1 of 7")

	_, err = run(t, "", "rm", "a.txt")
	assert.NoError(err)
	_, err = run(t, "", "cat", "a.txt")
	assert.True(errors.Is(err, ftable.ErrNotFound))
}

func TestFlagsOverrideConfig(t *testing.T) {
	setupImage(t)
	other := filepath.Join(t.TempDir(), "other.img")

	_, err := run(t, "", "--image", other, "--blocks", "64", "format", "--files", "3")
	require.NoError(t, err)
	_, err = run(t, "x", "--image", other, "--blocks", "64", "put", "f")
	require.NoError(t, err)
	out, err := run(t, "", "--image", other, "--blocks", "64", "stat")
	assert.NoError(t, err)
	assert.Contains(t, out, "blocks: 64\n")
	assert.Contains(t, out, "files: 1 of 2")

	out, err = run(t, "", "ls")
	assert.NoError(t, err)
	assert.Empty(t, out, "the configured image is untouched")
}

func TestBadConfig(t *testing.T) {
	setupImage(t)
	t.Setenv("FLATFS_TOTAL_BLOCKS", "1")
	_, err := run(t, "", "ls")
	assert.Error(t, err)
}
