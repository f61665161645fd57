// Copyright 2025, the segstitch authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	osArgs := []string{"/path/segstitch"}
	cfg, err := LoadConfig(osArgs, "/root")
	assert.NoError(t, err)
	c := DefaultConfig
	c.DBPath = "/root/segstitch.db"
	assert.Equal(t, c, *cfg)
}

func TestConfigFile(t *testing.T) {
	cfgFile := "./testdata/configs/testvalues.json"
	osArgs := []string{"/path/segstitch", "--cfg", cfgFile}
	cfg, err := LoadConfig(osArgs, "/root")
	assert.NoError(t, err)
	c := DefaultConfig
	c.Port = 9999
	c.LogLevel = "DEBUG"
	c.DBPath = "/data/segstitch.db"
	c.MaxUploadMiB = 64
	c.FetchWorkers = 2
	assert.Equal(t, c, *cfg)
}

func TestCommandLine(t *testing.T) {
	osArgs := []string{"/path/segstitch", "--loglevel", "DEBUG", "--timeout", "30",
		"--maxupload", "16", "--domains", "stream.example.com"}
	cfg, err := LoadConfig(osArgs, "/root")
	assert.NoError(t, err)
	c := DefaultConfig
	c.DBPath = "/root/segstitch.db"
	c.LogLevel = "DEBUG"
	c.TimeoutS = 30
	c.MaxUploadMiB = 16
	c.Port = 443
	c.Domains = "stream.example.com"
	assert.Equal(t, c, *cfg)
}

func TestEnv(t *testing.T) {
	osArgs := []string{"/path/segstitch", "--loglevel", "DEBUG"}
	t.Setenv("SEGSTITCH_LOGLEVEL", "WARN")
	cfg, err := LoadConfig(osArgs, "/root")
	assert.NoError(t, err)
	c := DefaultConfig
	c.DBPath = "/root/segstitch.db"
	c.LogLevel = "WARN"
	assert.Equal(t, c, *cfg)
}
