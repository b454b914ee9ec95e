package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"sync/atomic"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seenimoa/riskwatch/internal/transport"
	"github.com/seenimoa/riskwatch/pkg/models"
)

// resetFlags restores every flag to its default; cobra keeps parsed values
// between Execute calls on the same command tree.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		resetFlags(rootCmd)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "riskwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestClassifyCommand(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"해킹", "공격으로", "개인정보", "유출"}, "RED (trigger: 유출)\n"},
		{[]string{"시스템 점검 안내"}, "AMBER (trigger: 점검)\n"},
		{[]string{"신규 서비스 출시"}, "GREEN\n"},
	}
	for _, tt := range tests {
		out, err := execute(t, append([]string{"classify"}, tt.args...)...)
		require.NoError(t, err)
		assert.Equal(t, tt.want, out)
	}
}

func TestClassifyUsesConfiguredTriggers(t *testing.T) {
	path := writeConfig(t, "severity:\n  red: [\"breach\"]\n  amber: [\"patch\"]\n")

	out, err := execute(t, "--config", path, "classify", "Data BREACH reported")
	require.NoError(t, err)
	assert.Equal(t, "RED (trigger: breach)\n", out)

	out, err = execute(t, "--config", path, "classify", "해킹")
	require.NoError(t, err)
	assert.Equal(t, "GREEN\n", out)
}

func TestConfigCommandDumpsYAML(t *testing.T) {
	path := writeConfig(t, "keywords: [\"에스원\"]\nreport:\n  title: Test Watch\n")

	out, err := execute(t, "--config", path, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "에스원")
	assert.Contains(t, out, "Test Watch")
	assert.Contains(t, out, "strategy: naver")
}

func TestConfigCommandShowsFlagOverrides(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: info\n")

	out, err := execute(t, "--config", path, "--log-level", "debug", "config")
	require.NoError(t, err)
	assert.Contains(t, out, "level: debug")
	assert.NotContains(t, out, "level: info")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "riskwatch dev")
}

func TestRunRejectsUnknownStrategy(t *testing.T) {
	_, err := execute(t, "run", "--strategy", "carrier-pigeon", "--output", filepath.Join(t.TempDir(), "x.html"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")
}

func TestMissingConfigFile(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

var itemsTokenRe = regexp.MustCompile(`var ITEMS = "([^"]*)";`)

func TestRunWritesFallbackWhenSourceFails(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "upstream down", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	path := writeConfig(t, fmt.Sprintf(`keywords: ["해킹", "에스원"]
source:
  naver:
    url_template: "%s/search.naver?query=%%s"
collector:
  pause: 1ms
logging:
  level: error
`, srv.URL))
	output := filepath.Join(t.TempDir(), "site", "index.html")

	out, err := execute(t, "--config", path, "run", "--output", output)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
	assert.Contains(t, out, output)

	page, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(page), "</html>")

	m := itemsTokenRe.FindSubmatch(page)
	require.NotNil(t, m, "items token not found")
	items, err := transport.DecodeItems(string(m[1]))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "시스템", items[0].Keyword)
	assert.Equal(t, "데이터 수집 실패", items[0].Title)
	assert.Equal(t, "#", items[0].Link)
	assert.Equal(t, models.TierRed, items[0].Risk)
	assert.True(t, items[0].IsPlaceholder())
}
