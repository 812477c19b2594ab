package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseValid(t *testing.T) {
	doc := `
[database]
name = "shop"
path = "/var/lib/k9db/shop"

[dataflow]
workers = 4
`
	cfg, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	require.Equal(t, "shop", cfg.DatabaseName)
	require.Equal(t, "/var/lib/k9db/shop", cfg.StorePath)
	require.False(t, cfg.InMemory)
	require.Equal(t, 4, cfg.Workers)
}

func TestParseDefaultsWorkers(t *testing.T) {
	doc := `
[database]
name = "shop"
in_memory = true
`
	cfg, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	require.Equal(t, DefaultWorkers, cfg.Workers)
	require.True(t, cfg.InMemory)
}

func TestParseMissingName(t *testing.T) {
	doc := `
[database]
path = "/tmp/x"
`
	_, err := Parse(strings.NewReader(doc))
	require.Error(t, err)
}

func TestParseMissingPathWithoutInMemory(t *testing.T) {
	doc := `
[database]
name = "shop"
`
	_, err := Parse(strings.NewReader(doc))
	require.Error(t, err)
}
