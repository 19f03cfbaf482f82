package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRootCommandWiresExpectedSubcommands(t *testing.T) {
	names := make([]string, 0)
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "schema")
	assert.Contains(t, names, "config")
	assert.Contains(t, names, "stats")
}

func TestSchemaCommandWiresBootstrapAndList(t *testing.T) {
	names := make([]string, 0)
	for _, c := range schemaCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "bootstrap")
	assert.Contains(t, names, "list")
}

func TestConfigInitDefaultsToEcsdbToml(t *testing.T) {
	assert.Equal(t, "ecsdb.toml", configInitCmd.Flags().Lookup("out").DefValue)
}
