package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sagra-pos/internal/models"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "sagra-pos", cmd.Use)
	assert.True(t, cmd.SilenceUsage)
	assert.True(t, cmd.SilenceErrors)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"serve"},
		{"kitchen"},
		{"alerts"},
		{"migrate"},
		{"portions", "show"},
		{"portions", "reload"},
		{"counter", "set"},
		{"report"},
		{"history", "backfill"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
	assert.Equal(t, "config.yaml", configFlag.DefValue)

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)
}

func TestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()

	tests := []struct {
		path []string
		flag string
		def  string
	}{
		{path: []string{"serve"}, flag: "port", def: "0"},
		{path: []string{"kitchen"}, flag: "name", def: "kitchen"},
		{path: []string{"kitchen"}, flag: "prefetch", def: "0"},
		{path: []string{"migrate"}, flag: "dry-run", def: "false"},
		{path: []string{"report"}, flag: "format", def: "text"},
		{path: []string{"report"}, flag: "day", def: ""},
		{path: []string{"history", "backfill"}, flag: "dry-run", def: "false"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v/%s", tt.path, tt.flag), func(t *testing.T) {
			subCmd, _, err := cmd.Find(tt.path)
			require.NoError(t, err)
			f := subCmd.Flags().Lookup(tt.flag)
			require.NotNil(t, f)
			assert.Equal(t, tt.def, f.DefValue)
		})
	}

	portions, _, err := cmd.Find([]string{"portions"})
	require.NoError(t, err)
	assert.NotNil(t, portions.PersistentFlags().Lookup("day"))
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("boom")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))

	wrapped := fmt.Errorf("outer: %w", WrapExitError(ExitCommandError, "inner", errors.New("cause")))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
	assert.Equal(t, "outer: inner: cause", wrapped.Error())
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestExecute_MissingConfig(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	_, err := execute(t, "--config", missing, "report")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestExecute_InvalidArguments(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("event:\n  id: sagra-2026\n"), 0o644))

	tests := []struct {
		name string
		args []string
	}{
		{name: "counter value not a number", args: []string{"counter", "set", "dieci"}},
		{name: "counter value too large", args: []string{"counter", "set", "10000"}},
		{name: "unknown report format", args: []string{"--config", cfg, "report", "--format", "xml"}},
		{name: "bad business day", args: []string{"--config", cfg, "portions", "show", "--day", "14/08/2026"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestExecute_MigrateDryRun(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "002_report.sql"), []byte("SELECT 1;"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_init.sql"), []byte("SELECT 1;"), 0o644))
	cfg := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("event:\n  id: sagra-2026\n"), 0o644))

	out, err := execute(t, "--config", cfg, "migrate", "--dry-run", "--dir", dir)
	require.NoError(t, err)
	assert.Equal(t, "001_init.sql\n002_report.sql\n", out)
}

func TestParseCounterValue(t *testing.T) {
	v, err := parseCounterValue("0042")
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	_, err = parseCounterValue("-1")
	assert.Error(t, err)
}

func TestWritePortions(t *testing.T) {
	var buf bytes.Buffer
	err := writePortions(&buf, models.DailyPortions{
		BusinessDay: "2026-08-14",
		Items: map[string]models.PortionCounter{
			"pizza":     {Remaining: 8, CriticalThreshold: 3, IsLimited: true},
			"acqua":     {},
			"lasagna":   {Remaining: 2, CriticalThreshold: 5, IsLimited: true},
			"testaroli": {Remaining: 0, CriticalThreshold: 4, IsLimited: true},
		},
	})
	require.NoError(t, err)

	want := "Business day 2026-08-14\n" +
		"ITEM       REMAINING  THRESHOLD  STATE\n" +
		"lasagna    2          5          scarce\n" +
		"pizza      8          3          ok\n" +
		"testaroli  0          4          sold out\n"
	assert.Equal(t, want, buf.String())
}

func TestPendingBackfill(t *testing.T) {
	price := int64(700)
	total := int64(1400)
	records := []models.HistoryRecord{
		{ID: "done", PaymentMode: "card", TotalCents: &total,
			Lines: []models.HistoryLine{{Name: "Pizza", Quantity: 2, UnitPriceCents: &price}}},
		{ID: "legacy",
			Lines: []models.HistoryLine{{Name: "Pizza", Quantity: 3, UnitPriceCents: &price}}},
	}

	pending := pendingBackfill(records)
	require.Len(t, pending, 1)
	assert.Equal(t, "legacy", pending[0].ID)
	assert.Equal(t, "cash", pending[0].PaymentMode)
	require.NotNil(t, pending[0].TotalCents)
	assert.Equal(t, int64(2100), *pending[0].TotalCents)
}
