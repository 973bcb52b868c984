// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Serix Contributors

package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Help(t *testing.T) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"--help"})

	err := root.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "serix")
	assert.Contains(t, buf.String(), "run")
	assert.Contains(t, buf.String(), "regression")
	assert.Contains(t, buf.String(), "scenarios")
	assert.Contains(t, buf.String(), "campaigns")
	assert.Contains(t, buf.String(), "version")
}

func TestVersionCommand(t *testing.T) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"version"})

	err := root.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "serix")
	assert.Contains(t, buf.String(), "commit:")
}

func TestRootCommand_GlobalFlags(t *testing.T) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"--help"})

	err := root.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "--config")
	assert.Contains(t, buf.String(), "--verbose")
}

func TestRunCommand_MissingConfigFile(t *testing.T) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"run", "--config", "/nonexistent/serix.yaml"})

	err := root.Execute()
	assert.Error(t, err)
}

func TestScenariosCommand_ListsLibrary(t *testing.T) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"scenarios"})

	err := root.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "NAME")
	assert.Contains(t, buf.String(), "jailbreak")
	assert.Contains(t, buf.String(), "prompt_injection")
	assert.Contains(t, buf.String(), "system_prompt_leak")
}

func TestCampaignsCommand_RequiresTarget(t *testing.T) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"campaigns"})

	err := root.Execute()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "--target")
}

func TestCampaignsCommand_EmptyStore(t *testing.T) {
	dir := t.TempDir()
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"campaigns", "--target", "demo"})

	t.Setenv("SERIX_STORAGE_PATH", dir+"/serix.db")

	err := root.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "no runs recorded")
}
