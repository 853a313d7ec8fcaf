package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palamut62/ai-gant-news/internal/domain"
	"github.com/palamut62/ai-gant-news/internal/infrastructure/storage"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "timeline", cmd.Use)
	assert.Contains(t, cmd.Long, "Turkish and English")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"serve", "ingest", "migrate", "tail", "last-update"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "", configFlag.DefValue)

	levelFlag := cmd.PersistentFlags().Lookup("log-level")
	require.NotNil(t, levelFlag)
	assert.Equal(t, "", levelFlag.DefValue)
}

func TestTailCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	tailCmd, _, err := cmd.Find([]string{"tail"})
	require.NoError(t, err)

	recentFlag := tailCmd.Flags().Lookup("recent")
	require.NotNil(t, recentFlag)
	assert.Equal(t, "n", recentFlag.Shorthand)
	assert.Equal(t, "10", recentFlag.DefValue)
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path, _ := writeConfigAt(t)
	return path
}

func writeConfigAt(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "timeline.yaml")
	dsn := filepath.Join(dir, "timeline.db")
	body := "database:\n  driver: sqlite\n  dsn: " + dsn + "\nlogging:\n  level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path, dsn
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, _, err := executeCapture(t, args...)
	return out, err
}

func executeCapture(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestMigrateThenLastUpdate(t *testing.T) {
	path := writeConfig(t)

	out, err := execute(t, "--config", path, "migrate")
	require.NoError(t, err)
	assert.Equal(t, "schema ready (sqlite)\n", out)

	out, err = execute(t, "--config", path, "last-update")
	require.NoError(t, err)
	assert.Equal(t, "no successful ingestion yet\n", out)
}

func TestIngestRequiresCredential(t *testing.T) {
	t.Setenv("GENERATOR_API_KEY", "")
	path := writeConfig(t)

	_, err := execute(t, "--config", path, "ingest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key")
}

func TestTailWithSQLitePrintsRecentAndExits(t *testing.T) {
	path, dsn := writeConfigAt(t)

	_, err := execute(t, "--config", path, "migrate")
	require.NoError(t, err)

	repo, err := storage.NewSQLiteRepository(dsn, nil)
	require.NoError(t, err)
	_, err = repo.InsertAuditEntry(context.Background(), domain.SummaryAuditEntry(3, time.Now().UTC()))
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	out, errOut, err := executeCapture(t, "--config", path, "tail", "-n", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "3 New Developments Added")
	assert.Contains(t, errOut, "not following")
}
