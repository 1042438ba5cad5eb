package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlManifest = `title: Example Service
abstractions:
  - id: graph
    title: Graph Builder
    summary: builds the dependency graph
  - id: seq
    title: Sequencer
relationships:
  - source_id: graph
    target_id: seq
    label: feeds
`

func TestParseYAML(t *testing.T) {
	m, err := Parse([]byte(yamlManifest))
	require.NoError(t, err)

	assert.Equal(t, "Example Service", m.Title)
	require.Len(t, m.Abstractions, 2)
	assert.Equal(t, "graph", m.Abstractions[0].ID)
	assert.Equal(t, "builds the dependency graph", m.Abstractions[0].Summary)
	require.Len(t, m.Relationships, 1)
	assert.Equal(t, "graph", m.Relationships[0].SourceID)
	assert.Equal(t, "seq", m.Relationships[0].TargetID)
	assert.Equal(t, "feeds", m.Relationships[0].Label)
}

func TestParseJSON(t *testing.T) {
	raw := `{
	  "title": "Example Service",
	  "abstractions": [{"id": "graph", "title": "Graph Builder"}],
	  "relationships": [{"source_id": "graph", "target_id": "graph", "label": "self"}]
	}`
	m, err := Parse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "Example Service", m.Title)
	require.Len(t, m.Abstractions, 1)
	assert.Equal(t, "Graph Builder", m.Abstractions[0].Title)
}

func TestParseRejectsEmptyAbstractions(t *testing.T) {
	_, err := Parse([]byte("title: Empty\nabstractions: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no abstractions")
}

func TestParseRejectsBlankID(t *testing.T) {
	raw := "abstractions:\n  - id: \"  \"\n    title: Nameless\n"
	_, err := Parse([]byte(raw))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty id")
}

func TestParseRejectsMalformedInput(t *testing.T) {
	_, err := Parse([]byte("abstractions: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding manifest")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlManifest), 0o644))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, m.Abstractions, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
