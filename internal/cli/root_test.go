package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clientflow/api/internal/auth"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, path := range [][]string{{"serve"}, {"run"}, {"migrate"}, {"clients", "check"}, {"clients", "import"}, {"token", "issue"}} {
		t.Run(filepath.Join(path...), func(t *testing.T) {
			sub, _, err := cmd.Find(path)
			require.NoError(t, err)
			assert.Equal(t, path[len(path)-1], sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "info", cmd.PersistentFlags().Lookup("log-level").DefValue)
	assert.Equal(t, "json", cmd.PersistentFlags().Lookup("log-format").DefValue)

	serve, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	assert.Equal(t, "true", serve.Flags().Lookup("migrate").DefValue)
	assert.Equal(t, "true", serve.Flags().Lookup("scheduler").DefValue)
}

func TestInvalidGlobalFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clients.yaml")
	require.NoError(t, os.WriteFile(path, []byte("clients: []\n"), 0o600))

	_, err := execute(t, "--log-format", "xml", "clients", "check", path)
	assert.ErrorContains(t, err, "invalid log format")

	_, err = execute(t, "--log-level", "loud", "clients", "check", path)
	assert.ErrorContains(t, err, "invalid log level")
}

func TestClientsCheck(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clients.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`clients:
  - id: acme
    name: Acme Corp
    contacts: [jane@acme.example, bob@acme.example]
    domains: [acme.example]
    setup_complete: true
`), 0o600))

	out, err := execute(t, "clients", "check", path)
	require.NoError(t, err)

	var summaries []ClientSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, "acme", summaries[0].ID)
	assert.Equal(t, 2, summaries[0].Contacts)
	assert.Equal(t, "Client: Acme Corp", summaries[0].Labels[0])
}

func TestClientsCheckMissingFile(t *testing.T) {
	_, err := execute(t, "clients", "check", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTokenIssue(t *testing.T) {
	t.Setenv("CLIENTFLOW_TOKEN_SECRET", "cli-secret")

	out, err := execute(t, "token", "issue", "--subject", "ops@consulting.example", "--role", "operator")
	require.NoError(t, err)

	var issued map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &issued))
	assert.Equal(t, "operator", issued["role"])

	claims, err := auth.NewIssuer("cli-secret", 0).Parse(issued["token"])
	require.NoError(t, err)
	assert.Equal(t, "ops@consulting.example", claims.Sub)
}

func TestTokenIssueRejectsBadInput(t *testing.T) {
	t.Setenv("CLIENTFLOW_TOKEN_SECRET", "cli-secret")

	_, err := execute(t, "token", "issue", "--subject", "ops@consulting.example", "--role", "root")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	t.Setenv("CLIENTFLOW_TOKEN_SECRET", "")
	_, err = execute(t, "token", "issue", "--subject", "ops@consulting.example")
	assert.True(t, errors.Is(err, auth.ErrNoSecret))
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("boom")))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "bad", nil)))
}
