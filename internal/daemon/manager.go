package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

type Info struct {
	PID           int       `json:"pid"`
	Socket        string    `json:"socket"`
	StartedAt     time.Time `json:"started_at"`
	BinaryPath    string    `json:"binary_path,omitempty"`
	BinaryModTime time.Time `json:"binary_mod_time,omitempty"`
}

// Manager locates and stops the search daemon whose socket and info file
// live in Dir. Starting it is left to whoever runs "patsearch serve".
type Manager struct {
	Dir string
}

func (m Manager) SocketPath() string {
	return filepath.Join(m.Dir, "daemon.sock")
}

func (m Manager) InfoPath() string {
	return filepath.Join(m.Dir, "daemon.json")
}

func (m Manager) LoadInfo() (Info, error) {
	b, err := os.ReadFile(m.InfoPath())
	if err != nil {
		return Info{}, err
	}
	var info Info
	if err := json.Unmarshal(b, &info); err != nil {
		return Info{}, err
	}
	return info, nil
}

// IsRunning reports whether a live daemon built from the current binary owns
// the socket. Stale info files are cleaned up; a daemon from an older build
// is asked to stop.
func (m Manager) IsRunning() (bool, Info, error) {
	info, err := m.LoadInfo()
	if err != nil {
		if os.IsNotExist(err) {
			return false, Info{}, nil
		}
		return false, Info{}, err
	}
	if !processAlive(info.PID) || !socketAlive(info.Socket) {
		m.cleanupStale()
		return false, Info{}, nil
	}
	if m.binaryMismatch(info) {
		_ = m.Stop()
		m.cleanupStale()
		return false, Info{}, nil
	}
	return true, info, nil
}

func (m Manager) Stop() error {
	client, err := NewClient(m.SocketPath())
	if err != nil {
		return err
	}
	defer client.Close()
	return client.Stop()
}

func (m Manager) cleanupStale() {
	_ = os.Remove(m.SocketPath())
	_ = os.Remove(m.InfoPath())
}

func (m Manager) binaryMismatch(info Info) bool {
	path, modTime, err := CurrentBinaryInfo()
	if err != nil {
		return false
	}
	if info.BinaryPath == "" || info.BinaryModTime.IsZero() {
		return false
	}
	if info.BinaryPath != path {
		return true
	}
	return !info.BinaryModTime.Equal(modTime)
}

func socketAlive(path string) bool {
	conn, err := net.DialTimeout("unix", path, 200*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

func CurrentBinaryInfo() (string, time.Time, error) {
	path, err := os.Executable()
	if err != nil {
		return "", time.Time{}, err
	}
	stat, err := os.Stat(path)
	if err != nil {
		return path, time.Time{}, err
	}
	return path, stat.ModTime().UTC(), nil
}

func EnsureDir(path string) error {
	if path == "" {
		return errors.New("daemon dir required")
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create daemon dir: %w", err)
	}
	return nil
}
