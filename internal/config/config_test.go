package config_test

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"unsafe"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/shmcache/internal/config"
	"github.com/calvinalkan/shmcache/internal/fs"
	"github.com/calvinalkan/shmcache/internal/shm"
	"github.com/calvinalkan/shmcache/pkg/shmcache"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func Test_Load_Returns_Defaults_When_No_Files(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	cfg, err := config.Load(config.LoadInput{WorkDir: dir, Env: map[string]string{"HOME": dir}})
	require.NoError(t, err)

	want := config.Default()
	want.WorkDir = dir

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, filepath.Join(shm.DefaultDir(), "shmq"), cfg.SegmentPath())
}

func Test_Load_Layers_Global_Project_And_Overrides_When_All_Present(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	xdg := filepath.Join(dir, "xdg")

	writeFile(t, filepath.Join(xdg, "shmq", "config.json"), `{
		// global
		"segment": "global-seg",
		"key_size": 32,
		"hash": "xxhash",
	}`)
	writeFile(t, filepath.Join(dir, config.FileName), `{"key_size": 48, "slots": 100}`)

	cfg, err := config.Load(config.LoadInput{
		WorkDir:   dir,
		Env:       map[string]string{"XDG_CONFIG_HOME": xdg, "HOME": "/nonexistent"},
		Overrides: config.Config{Slots: 7},
	})
	require.NoError(t, err)

	assert.Equal(t, "global-seg", cfg.Segment)
	assert.Equal(t, 48, cfg.KeySize)
	assert.Equal(t, 7, cfg.Slots)
	assert.Equal(t, "xxhash", cfg.Hash)
	assert.Equal(t, shmcache.DefaultPayloadSize, cfg.PayloadSize)
	assert.Equal(t, filepath.Join(xdg, "shmq", "config.json"), cfg.Sources.Global)
	assert.Equal(t, filepath.Join(dir, config.FileName), cfg.Sources.Project)
}

func Test_Load_Uses_Explicit_File_Instead_Of_Project_File(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, config.FileName), `{"segment": "project"}`)
	writeFile(t, filepath.Join(dir, "custom.json"), `{"segment": "./custom"}`)

	cfg, err := config.Load(config.LoadInput{WorkDir: dir, ConfigPath: "custom.json"})
	require.NoError(t, err)

	assert.Equal(t, "./custom", cfg.Segment)
	assert.Equal(t, filepath.Join(dir, "custom"), cfg.SegmentPath())
	assert.Equal(t, filepath.Join(dir, "custom.json"), cfg.Sources.Project)
}

func Test_Load_Returns_Error_When_Config_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    error
	}{
		{name: "Syntax", content: `{invalid json}`, want: config.ErrConfigInvalid},
		{name: "UnknownField", content: `{"slot": 3}`, want: config.ErrConfigInvalid},
		{name: "EmptySegment", content: `{"segment": ""}`, want: config.ErrConfigInvalid},
		{name: "WrongType", content: `{"slots": "many"}`, want: config.ErrConfigInvalid},
		{name: "NegativeSlots", content: `{"slots": -1}`, want: config.ErrConfigInvalid},
		{name: "BadSize", content: `{"size": "lots"}`, want: config.ErrConfigInvalid},
		{name: "BadHash", content: `{"hash": "md5"}`, want: config.ErrConfigInvalid},
		{name: "HugeKey", content: `{"key_size": 100000}`, want: config.ErrConfigInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			writeFile(t, filepath.Join(dir, config.FileName), tt.content)

			_, err := config.Load(config.LoadInput{WorkDir: dir})
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func Test_Load_Returns_ErrConfigFileNotFound_When_Explicit_File_Missing(t *testing.T) {
	t.Parallel()

	_, err := config.Load(config.LoadInput{WorkDir: t.TempDir(), ConfigPath: "missing.json"})
	require.ErrorIs(t, err, config.ErrConfigFileNotFound)
}

func Test_Load_Returns_ErrConfigFileRead_When_Read_Fails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, config.FileName), `{}`)

	faulty := fs.NewFaulty(fs.NewReal())
	faulty.Fail(fs.OpReadFile, syscall.EACCES)

	_, err := config.Load(config.LoadInput{WorkDir: dir, FS: faulty})
	require.ErrorIs(t, err, config.ErrConfigFileRead)
	assert.True(t, fs.IsInjected(err))
}

func Test_ParseSize_Accepts_Binary_Suffixes(t *testing.T) {
	t.Parallel()

	tests := map[string]int{
		"4096":   4096,
		"4096b":  4096,
		"64K":    64 << 10,
		"64KiB":  64 << 10,
		" 16m ":  16 << 20,
		"16MB":   16 << 20,
		"1G":     1 << 30,
		"1gib":   1 << 30,
		"123456": 123456,
	}

	for in, want := range tests {
		got, err := config.ParseSize(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "0", "K", "-1", "1T", "1.5M", "abc"} {
		_, err := config.ParseSize(bad)
		assert.Error(t, err, bad)
	}
}

func Test_SegmentBytes_Fits_Requested_Slots_When_Size_Unset(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Slots = 10
	cfg.KeySize = 8
	cfg.PayloadSize = 8

	size, err := cfg.SegmentBytes()
	require.NoError(t, err)

	opts, err := cfg.CacheOptions()
	require.NoError(t, err)

	region := make([]uint64, size/8)
	c, err := shmcache.Create(unsafe.Slice((*byte)(unsafe.Pointer(&region[0])), size), opts)
	require.NoError(t, err)
	assert.Equal(t, 10, c.Capacity())

	cfg.Size = "1M"

	size, err = cfg.SegmentBytes()
	require.NoError(t, err)
	assert.Equal(t, 1<<20, size)
}
