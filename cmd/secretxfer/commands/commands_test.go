package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/secretxfer/internal/config"
	"github.com/systmms/secretxfer/internal/logging"
	"github.com/systmms/secretxfer/internal/stores"
	"github.com/systmms/secretxfer/pkg/secretstore"
	"github.com/systmms/secretxfer/tests/fakes"
)

const testConfig = `
version: 0
source:
  type: memory
  name: parent
destination:
  type: memory
  name: child
transfer:
  source_name: db-pass
  destination_name: db-pass-copy
retry:
  max_attempts: 3
  base_delay: 1ms
  max_delay: 2ms
`

// useStores routes store creation to the given stores by name.
func useStores(t *testing.T, byName map[string]secretstore.Store) {
	t.Helper()
	reg := stores.NewRegistry()
	reg.RegisterFactory(stores.TypeMemory, func(name string, cfg map[string]interface{}, deps stores.Deps) (secretstore.Store, error) {
		store, ok := byName[name]
		if !ok {
			return nil, errors.New("no test store named " + name)
		}
		return store, nil
	})

	old := storeRegistry
	storeRegistry = reg
	t.Cleanup(func() { storeRegistry = old })
}

func newTestConfig(t *testing.T, content string) *config.Config {
	t.Helper()
	for _, k := range []string{
		"AZURE_TENANT_ID", "AZURE_CLIENT_ID", "AZURE_CLIENT_SECRET", "AZURE_KEY_VAULT_URL",
		"SOURCE_VAULT_URL", "DESTINATION_VAULT_URL", "SOURCE_SECRET_NAME", "TARGET_SECRET_NAME",
		"COPY_TAGS", "COPY_CONTENT_TYPE", "PORT", "SECRET_NAME",
	} {
		t.Setenv(k, "")
	}

	path := filepath.Join(t.TempDir(), "secretxfer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return &config.Config{Path: path, Logger: logging.NewNop()}
}

func execute(cmd *cobra.Command, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func sourceRecord() secretstore.Record {
	return secretstore.NewRecord("db-pass", "p@ss",
		secretstore.WithContentType("text/plain"),
		secretstore.WithTags(map[string]string{"owner": "teamA"}))
}

func TestCopyCommand_Success(t *testing.T) {
	parent := stores.NewMemory("parent", stores.Deps{})
	parent.Seed("db-pass", sourceRecord())
	child := stores.NewMemory("child", stores.Deps{})
	useStores(t, map[string]secretstore.Store{"parent": parent, "child": child})

	stdout, stderr, err := execute(NewCopyCommand(newTestConfig(t, testConfig)))
	require.NoError(t, err)
	assert.Empty(t, stderr)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "[info] Retrieved 'db-pass' from parent.", lines[0])
	assert.Equal(t, "[ok] Secret 'db-pass-copy' successfully written to child.", lines[1])

	stored, err := child.Fetch(t.Context(), "db-pass-copy")
	require.NoError(t, err)
	assert.True(t, stored.Equal(sourceRecord()))
}

func TestCopyCommand_FlagsOverrideConfig(t *testing.T) {
	parent := stores.NewMemory("parent", stores.Deps{})
	parent.Seed("api-key", sourceRecord())
	child := stores.NewMemory("child", stores.Deps{})
	useStores(t, map[string]secretstore.Store{"parent": parent, "child": child})

	_, _, err := execute(NewCopyCommand(newTestConfig(t, testConfig)),
		"--source-name", "api-key", "--dest-name", "api-key-2", "--copy-tags=false", "--copy-content-type=false")
	require.NoError(t, err)

	stored, err := child.Fetch(t.Context(), "api-key-2")
	require.NoError(t, err)
	assert.Equal(t, "p@ss", stored.Value())
	assert.False(t, stored.HasTags())
	_, hasCT := stored.ContentType()
	assert.False(t, hasCT)
}

const sourceOnlyConfig = `
version: 0
source:
  type: memory
  name: parent
destination:
  type: memory
  name: child
transfer:
  source_name: db-pass
`

func TestCopyCommand_SourceNameFlagWithoutExplicitDestination(t *testing.T) {
	parent := stores.NewMemory("parent", stores.Deps{})
	parent.Seed("api-key", secretstore.NewRecord("api-key", "k3y"))
	child := stores.NewMemory("child", stores.Deps{})
	child.Seed("db-pass", secretstore.NewRecord("db-pass", "untouched"))
	useStores(t, map[string]secretstore.Store{"parent": parent, "child": child})

	stdout, _, err := execute(NewCopyCommand(newTestConfig(t, sourceOnlyConfig)), "--source-name", "api-key")
	require.NoError(t, err)
	assert.Contains(t, stdout, "[ok] Secret 'api-key' successfully written to child.")

	copied, err := child.Fetch(t.Context(), "api-key")
	require.NoError(t, err)
	assert.Equal(t, "k3y", copied.Value())

	other, err := child.Fetch(t.Context(), "db-pass")
	require.NoError(t, err)
	assert.Equal(t, "untouched", other.Value())
}

func TestCopyCommand_SourceNameFlagKeepsExplicitDestination(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     string
		want    string
	}{
		{name: "config file", content: testConfig, want: "db-pass-copy"},
		{name: "environment", content: sourceOnlyConfig, env: "from-env", want: "from-env"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parent := stores.NewMemory("parent", stores.Deps{})
			parent.Seed("api-key", secretstore.NewRecord("api-key", "k3y"))
			child := stores.NewMemory("child", stores.Deps{})
			useStores(t, map[string]secretstore.Store{"parent": parent, "child": child})

			cfg := newTestConfig(t, tt.content)
			if tt.env != "" {
				t.Setenv("TARGET_SECRET_NAME", tt.env)
			}

			_, _, err := execute(NewCopyCommand(cfg), "--source-name", "api-key")
			require.NoError(t, err)

			stored, err := child.Fetch(t.Context(), tt.want)
			require.NoError(t, err)
			assert.Equal(t, "k3y", stored.Value())
			_, err = child.Fetch(t.Context(), "api-key")
			assert.Error(t, err)
		})
	}
}

func TestCopyCommand_SourceMissing(t *testing.T) {
	child := stores.NewMemory("child", stores.Deps{})
	useStores(t, map[string]secretstore.Store{
		"parent": stores.NewMemory("parent", stores.Deps{}),
		"child":  child,
	})

	stdout, stderr, err := execute(NewCopyCommand(newTestConfig(t, testConfig)))
	require.Error(t, err)
	assert.Equal(t, 1, ExitCode(err))
	assert.Empty(t, stdout)
	assert.Equal(t, "[error] Secret 'db-pass' not found in parent.\n", stderr)
	assert.Zero(t, child.Writes())
}

func TestCopyCommand_WriteFailure(t *testing.T) {
	parent := stores.NewMemory("parent", stores.Deps{})
	parent.Seed("db-pass", sourceRecord())
	child := fakes.NewFlakyStore("child").FailUpsert(3, 503)
	useStores(t, map[string]secretstore.Store{"parent": parent, "child": child})

	stdout, stderr, err := execute(NewCopyCommand(newTestConfig(t, testConfig)))
	require.Error(t, err)
	assert.Equal(t, 2, ExitCode(err))
	assert.Contains(t, stdout, "[info] Retrieved 'db-pass' from parent.")
	assert.True(t, strings.HasPrefix(stderr, "[error] Failed writing to child:"), stderr)
	assert.Equal(t, 3, child.UpsertCalls())
}

func TestCopyCommand_MaxAttemptsFlag(t *testing.T) {
	parent := fakes.NewFlakyStore("parent").FailFetch(5, 503)
	parent.Put("db-pass", sourceRecord())
	useStores(t, map[string]secretstore.Store{"parent": parent, "child": stores.NewMemory("child", stores.Deps{})})

	_, stderr, err := execute(NewCopyCommand(newTestConfig(t, testConfig)), "--max-attempts", "2")
	require.Error(t, err)
	assert.Equal(t, 2, ExitCode(err))
	assert.Contains(t, stderr, "[error] Failed reading 'db-pass' from parent")
	assert.Equal(t, 2, parent.FetchCalls())
}

func TestCopyCommand_TransientFetchRecovers(t *testing.T) {
	parent := fakes.NewFlakyStore("parent").FailFetch(2, 429)
	parent.Put("db-pass", sourceRecord())
	child := stores.NewMemory("child", stores.Deps{})
	useStores(t, map[string]secretstore.Store{"parent": parent, "child": child})

	_, _, err := execute(NewCopyCommand(newTestConfig(t, testConfig)))
	require.NoError(t, err)
	assert.Equal(t, 3, parent.FetchCalls())
	assert.Equal(t, 1, child.Writes())
}

func TestCopyCommand_DryRun(t *testing.T) {
	parent := stores.NewMemory("parent", stores.Deps{})
	parent.Seed("db-pass", sourceRecord())
	child := stores.NewMemory("child", stores.Deps{})
	useStores(t, map[string]secretstore.Store{"parent": parent, "child": child})

	stdout, _, err := execute(NewCopyCommand(newTestConfig(t, testConfig)), "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, stdout, "[ok] Dry run: 'db-pass-copy' would be written to child")
	assert.NotContains(t, stdout, "p@ss")
	assert.Zero(t, child.Writes())
}

func TestCopyCommand_ConfigError(t *testing.T) {
	useStores(t, map[string]secretstore.Store{})

	_, stderr, err := execute(NewCopyCommand(newTestConfig(t, "retry:\n  base_delay: soon\n")))
	require.Error(t, err)
	assert.Equal(t, 2, ExitCode(err))
	assert.True(t, strings.HasPrefix(stderr, "[error] Configuration error"), stderr)
}

func TestCopyCommand_MissingStores(t *testing.T) {
	useStores(t, map[string]secretstore.Store{})

	_, stderr, err := execute(NewCopyCommand(newTestConfig(t, "transfer:\n  source_name: db-pass\n")))
	require.Error(t, err)
	assert.Equal(t, 2, ExitCode(err))
	assert.Contains(t, stderr, "source store is not configured")
}

func TestGetCommand_Redacted(t *testing.T) {
	parent := stores.NewMemory("parent", stores.Deps{})
	parent.Seed("db-pass", sourceRecord())
	useStores(t, map[string]secretstore.Store{"parent": parent, "child": stores.NewMemory("child", stores.Deps{})})

	stdout, _, err := execute(NewGetCommand(newTestConfig(t, testConfig)))
	require.NoError(t, err)
	assert.Contains(t, stdout, "[REDACTED]")
	assert.NotContains(t, stdout, "p@ss")
}

func TestGetCommand_Reveal(t *testing.T) {
	child := stores.NewMemory("child", stores.Deps{})
	child.Seed("db-pass-copy", sourceRecord())
	useStores(t, map[string]secretstore.Store{"parent": stores.NewMemory("parent", stores.Deps{}), "child": child})

	stdout, _, err := execute(NewGetCommand(newTestConfig(t, testConfig)), "--store", "destination", "--reveal")
	require.NoError(t, err)
	assert.Equal(t, "p@ss", stdout)
}

func TestGetCommand_JSONOutput(t *testing.T) {
	parent := stores.NewMemory("parent", stores.Deps{})
	parent.Seed("db-pass", sourceRecord())
	useStores(t, map[string]secretstore.Store{"parent": parent, "child": stores.NewMemory("child", stores.Deps{})})

	stdout, _, err := execute(NewGetCommand(newTestConfig(t, testConfig)), "--name", "db-pass", "--json")
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, "parent", out["store"])
	assert.Equal(t, "db-pass", out["name"])
	assert.Equal(t, "text/plain", out["content_type"])
	assert.Equal(t, map[string]interface{}{"owner": "teamA"}, out["tags"])
	assert.NotContains(t, out, "value")
}

func TestGetCommand_NotFound(t *testing.T) {
	useStores(t, map[string]secretstore.Store{
		"parent": stores.NewMemory("parent", stores.Deps{}),
		"child":  stores.NewMemory("child", stores.Deps{}),
	})

	_, _, err := execute(NewGetCommand(newTestConfig(t, testConfig)), "--name", "nope")
	require.Error(t, err)
	assert.Equal(t, 1, ExitCode(err))
	assert.Contains(t, err.Error(), "Secret 'nope' not found in parent")
}

func TestGetCommand_CancelStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	parent := fakes.NewFlakyStore("parent").FailFetch(5, 503)
	parent.OnFetch = func(int) { cancel() }
	useStores(t, map[string]secretstore.Store{"parent": parent, "child": fakes.NewFlakyStore("child")})

	cmd := NewGetCommand(newTestConfig(t, testConfig))
	cmd.SetContext(ctx)
	_, _, err := execute(cmd, "--name", "db-pass")

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, parent.FetchCalls())
}

func TestGetCommand_UnknownStoreRole(t *testing.T) {
	useStores(t, map[string]secretstore.Store{})

	_, _, err := execute(NewGetCommand(newTestConfig(t, testConfig)), "--store", "child")
	require.Error(t, err)
	assert.Equal(t, 2, ExitCode(err))
}

func TestDoctorCommand_Healthy(t *testing.T) {
	useStores(t, map[string]secretstore.Store{
		"parent": stores.NewMemory("parent", stores.Deps{}),
		"child":  stores.NewMemory("child", stores.Deps{}),
	})

	stdout, _, err := execute(NewDoctorCommand(newTestConfig(t, testConfig)))
	require.NoError(t, err)
	assert.Contains(t, stdout, "STORE")
	assert.Contains(t, stdout, "STATUS")
	assert.Contains(t, stdout, "Summary: 2/2 stores healthy")
}

type failingValidator struct {
	*stores.Memory
	err error
}

func (f failingValidator) Validate(ctx context.Context) error { return f.err }

func TestDoctorCommand_Unhealthy(t *testing.T) {
	useStores(t, map[string]secretstore.Store{
		"parent": stores.NewMemory("parent", stores.Deps{}),
		"child": failingValidator{
			Memory: stores.NewMemory("child", stores.Deps{}),
			err:    &secretstore.Error{Store: "child", Op: secretstore.OpValidate, StatusCode: 403},
		},
	})

	stdout, _, err := execute(NewDoctorCommand(newTestConfig(t, testConfig)), "--verbose")
	require.Error(t, err)
	assert.Contains(t, stdout, "✗ error")
	assert.Contains(t, stdout, "Summary: 1/2 stores healthy")
}

func TestCompletionCommand(t *testing.T) {
	root := &cobra.Command{Use: "secretxfer"}
	root.AddCommand(NewCompletionCommand())

	stdout, _, err := execute(root, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, stdout, "secretxfer")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 2, ExitCode(errors.New("boom")))
	assert.Equal(t, 1, ExitCode(&ExitError{Code: 1, Err: errors.New("missing")}))
}
