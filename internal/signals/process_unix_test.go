//go:build !windows

package signals

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessRunning(t *testing.T) {
	tests := []struct {
		name string
		pid  int
		want bool
	}{
		{"zero", 0, false},
		{"negative", -1, false},
		{"self", os.Getpid(), true},
		{"parent", os.Getppid(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, processRunning(tt.pid))
		})
	}
}

func TestProcessRunning_ExitedChild(t *testing.T) {
	// The test binary with no matching tests exits at once.
	cmd := exec.Command(os.Args[0], "-test.run=^$")
	require.NoError(t, cmd.Run())

	assert.False(t, processRunning(cmd.Process.Pid))

	path := filepath.Join(t.TempDir(), "hrconnect.pid")
	require.NoError(t, WritePIDFile(path, cmd.Process.Pid))
	_, ok := RunningPID(path)
	assert.False(t, ok)
}
