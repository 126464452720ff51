// Package config provides tests for settings resolution
package config

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `verbose: true
log_file: /var/log/galtools.log
workers: 6
unpack:
  all: true
  sniff: true
`

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HOME", "/home/nobody")
	cfg, err := Load(New(afero.NewMemMapFs()), "")
	require.NoError(t, err)
	assert.Equal(t, &Config{}, cfg)
}

func TestLoad_File(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/galtools.yaml", []byte(sample), 0644))

	cfg, err := Load(New(fs), "/etc/galtools.yaml")
	require.NoError(t, err)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, "/var/log/galtools.log", cfg.LogFile)
	assert.Equal(t, 6, cfg.Workers)
	assert.False(t, cfg.Strict)
	assert.Equal(t, UnpackConfig{All: true, Sniff: true}, cfg.Unpack)
}

func TestLoad_HomeFile(t *testing.T) {
	t.Setenv("HOME", "/home/rion")
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/home/rion/.galtools.yaml", []byte("strict: true\n"), 0644))

	cfg, err := Load(New(fs), "")
	require.NoError(t, err)
	assert.True(t, cfg.Strict)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(New(afero.NewMemMapFs()), "/nowhere/galtools.yaml")
	assert.Error(t, err)
}

func TestLoad_Environment(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/galtools.yaml", []byte(sample), 0644))
	t.Setenv("GALTOOLS_WORKERS", "2")
	t.Setenv("GALTOOLS_UNPACK_ALL", "false")

	cfg, err := Load(New(fs), "/etc/galtools.yaml")
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Workers)
	assert.False(t, cfg.Unpack.All)
	assert.True(t, cfg.Unpack.Sniff)
}

func TestBindFlags(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/galtools.yaml", []byte(sample), 0644))

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("workers", 0, "")
	flags.Bool("strict", false, "")
	flags.String("log-file", "", "")
	flags.String("output", "", "")
	require.NoError(t, flags.Parse([]string{"--workers=3", "--strict"}))

	v := New(fs)
	require.NoError(t, BindFlags(v, flags))
	cfg, err := Load(v, "/etc/galtools.yaml")
	require.NoError(t, err)

	// Changed flags win, unchanged ones leave the file value
	assert.Equal(t, 3, cfg.Workers)
	assert.True(t, cfg.Strict)
	assert.Equal(t, "/var/log/galtools.log", cfg.LogFile)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "defaults", config: Config{}},
		{name: "bounded pool", config: Config{Workers: 8}},
		{name: "negative workers", config: Config{Workers: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestKeyForFlag(t *testing.T) {
	tests := map[string]string{
		"verbose":  KeyVerbose,
		"log-file": KeyLogFile,
		"all":      KeyUnpackAll,
		"unpack":   KeyUnpackSniff,
		"variant":  "",
	}
	for flag, want := range tests {
		if got := keyForFlag(flag); got != want {
			t.Errorf("keyForFlag(%q) = %q, want %q", flag, got, want)
		}
	}
}
