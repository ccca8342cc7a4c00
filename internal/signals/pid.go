package signals

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultPIDFilePath honors HRCONNECT_HOME, then falls back to ~/.hrconnect.
func DefaultPIDFilePath() string {
	if home := os.Getenv("HRCONNECT_HOME"); home != "" {
		return filepath.Join(home, "hrconnect.pid")
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".hrconnect", "hrconnect.pid")
	}
	return filepath.Join(homeDir, ".hrconnect", "hrconnect.pid")
}

// WritePIDFile records pid at path, creating the directory.
func WritePIDFile(path string, pid int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create pid dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0600); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

// ReadPIDFile returns the pid stored at path.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pid file %s: %w", path, err)
	}
	return pid, nil
}

// RemovePIDFile deletes path. A missing file is not an error.
func RemovePIDFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// RunningPID returns the pid recorded at path when that process is still
// alive. A stale file reports false.
func RunningPID(path string) (int, bool) {
	pid, err := ReadPIDFile(path)
	if err != nil {
		return 0, false
	}
	if !processRunning(pid) {
		return 0, false
	}
	return pid, true
}
