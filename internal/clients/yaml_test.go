package clients

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDirectory = `
clients:
  - name: Acme Corp
    contacts: [jane@acme.com]
    domains: [acme.com]
    notes_doc: notes/acme.md
    task_project: "2203306141"
    setup_complete: true
  - id: beta
    name: Beta
    labels:
      base: "Client: Beta Ltd"
`

func TestParseYAML(t *testing.T) {
	list, err := ParseYAML([]byte(sampleDirectory))
	require.NoError(t, err)
	require.Len(t, list, 2)

	acme := list[0]
	assert.Equal(t, "acme-corp", acme.ID)
	assert.Equal(t, "Client: Acme Corp/Meeting Agendas", acme.Labels.Agendas)
	assert.True(t, acme.SetupComplete)

	beta := list[1]
	assert.Equal(t, "Client: Beta Ltd", beta.Labels.Base)
	assert.Equal(t, "Client: Beta/Meeting Summaries", beta.Labels.Summaries)
}

func TestParseYAMLRejectsDuplicatesAndNameless(t *testing.T) {
	_, err := ParseYAML([]byte("clients:\n  - name: A\n  - name: a\n"))
	assert.ErrorContains(t, err, "duplicate")

	_, err = ParseYAML([]byte("clients:\n  - id: x\n"))
	assert.ErrorContains(t, err, "no name")
}

func TestFileDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clients.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleDirectory), 0o600))

	list, err := NewFileDirectory(path).ListClients(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
