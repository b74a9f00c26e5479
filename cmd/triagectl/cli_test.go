package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("TRIAGE_RULES_FILE", "")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--env", filepath.Join(t.TempDir(), "none.env")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestAssessEmergency(t *testing.T) {
	out, err := run(t, "", "assess", "ปวดท้องทนไม่ไหวแล้ว")
	require.NoError(t, err)
	assert.Contains(t, out, "Tier:       emergency")
	assert.Contains(t, out, "Stopped:    emergency_keyword")
}

func TestAssessJSON(t *testing.T) {
	out, err := run(t, "", "assess", "--json", "ปวดหัว")
	require.NoError(t, err)

	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, true, res["NeedMoreInfo"])
	assert.Equal(t, "uncertain", res["TriageLevel"])
	assert.NotEmpty(t, res["NextQuestion"])
}

func TestAssessRejectsMalformedAnswer(t *testing.T) {
	_, err := run(t, "", "assess", "--answer", "duration", "ไอ")
	assert.ErrorContains(t, err, "slot=value")

	_, err = run(t, "", "assess")
	assert.Error(t, err)
}

func TestParseAnswers(t *testing.T) {
	got, err := parseAnswers([]string{"duration = 3", "severity=มาก"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"duration": "3", "severity": "มาก"}, got)

	_, err = parseAnswers([]string{"=x"})
	assert.Error(t, err)
}

func TestChatEmergencyEndsWithDiagnosis(t *testing.T) {
	out, err := run(t, "ปวดท้องทนไม่ไหวแล้ว\n", "chat", "--session", "cli-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Session cli-1")
	assert.Contains(t, out, "Tier:       emergency")
	assert.Contains(t, out, "\n- ")
}

func TestChatAsksUntilItDecides(t *testing.T) {
	input := "ปวดหัว\n" + strings.Repeat("ไม่\n", 10)
	out, err := run(t, input, "chat")
	require.NoError(t, err)
	assert.Contains(t, out, "(1) ")
	assert.Contains(t, out, "Tier:")
	assert.NotContains(t, out, "(7) ")
}

func TestChatQuit(t *testing.T) {
	out, err := run(t, "ปวดหัว\n\n/quit\nไม่\n", "chat")
	require.NoError(t, err)
	assert.Contains(t, out, "(1) ")
	assert.NotContains(t, out, "(2) ")
	assert.NotContains(t, out, "Tier:")
}

func TestRulesValidate(t *testing.T) {
	out, err := run(t, "", "rules", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "(embedded) ok:")

	bad := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("version: v-test\n"), 0o600))
	_, err = run(t, "", "rules", "validate", bad)
	assert.Error(t, err)
}

func TestMigrate(t *testing.T) {
	for _, k := range []string{"DATABASE_URL", "SUPABASE_URL", "SUPABASE_KEY", "PERSIST_POLICY", "SESSION_CACHE", "LLM_PROVIDER", "DOCTOR_CHAT_ID"} {
		t.Setenv(k, "")
	}
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "triage.db"))
	t.Setenv("DB_CONNECT_ATTEMPTS", "1")

	out, err := run(t, "", "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Migrations applied successfully!")

	t.Setenv("STORE_DRIVER", "memory")
	_, err = run(t, "", "migrate")
	assert.ErrorContains(t, err, "has no migrations")
}
