package scripts

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestScriptDryRuns(t *testing.T) {
	cases := []struct {
		script string
		args   []string
		want   []string
	}{
		{
			script: "stack.sh",
			args:   []string{"up", "--dry-run"},
			want: []string{
				"[dry-run] docker compose",
				"sqlpilot-migrate -direction up",
				"[dry-run] nohup env",
				"stack is up",
			},
		},
		{
			script: "stack.sh",
			args:   []string{"down", "--dry-run"},
			want:   []string{"[dry-run] cd", "[dry-run] docker compose", "stack is down"},
		},
		{
			script: "stack.sh",
			args:   []string{"status", "--dry-run"},
			want:   []string{"compose.yml ps", "sqlpilot-api not running"},
		},
		{
			script: "restore_drill.sh",
			args:   []string{"--dry-run"},
			want: []string{
				"creating session store backup",
				"restoring backup into verification database",
				"comparing session and audit counts source vs restored",
				"verifying migration version metadata parity",
				"checking suspended sessions have no recorded decisions",
				"skipping API readiness check",
				"restore drill succeeded",
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.script+" "+strings.Join(tc.args, " "), func(t *testing.T) {
			stdout, stderr, err := runScript(t, tc.script, tc.args...)
			if err != nil {
				t.Fatalf("%s failed: %v\nstdout:\n%s\nstderr:\n%s", tc.script, err, stdout, stderr)
			}
			for _, token := range tc.want {
				if !strings.Contains(stdout, token) {
					t.Fatalf("output missing %q\noutput:\n%s", token, stdout)
				}
			}
		})
	}
}

func TestScriptsRejectUnknownInput(t *testing.T) {
	cases := []struct {
		script string
		arg    string
		want   string
	}{
		{script: "stack.sh", arg: "restart", want: "unknown command"},
		{script: "restore_drill.sh", arg: "--fast", want: "unknown argument"},
	}
	for _, tc := range cases {
		_, stderr, err := runScript(t, tc.script, tc.arg)
		if err == nil {
			t.Fatalf("%s %s: expected non-zero exit", tc.script, tc.arg)
		}
		if !strings.Contains(stderr, tc.want) {
			t.Fatalf("%s %s: stderr missing %q:\n%s", tc.script, tc.arg, tc.want, stderr)
		}
	}
}

func runScript(t *testing.T, name string, args ...string) (string, string, error) {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	cmd := exec.Command("bash", append([]string{filepath.Join(filepath.Dir(thisFile), name)}, args...)...)
	cmd.Env = append(os.Environ(), "SQLPILOT_STACK_RUN_DIR="+t.TempDir())
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}
