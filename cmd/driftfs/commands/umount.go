package commands

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var umountTimeout time.Duration

var umountCmd = &cobra.Command{
	Use:   "umount",
	Short: "Unmount a background driftfs mount",
	Long: `Unmount a driftfs mount started in daemon mode.

Sends SIGTERM to the daemon recorded in the PID file and waits for it to
exit, which unmounts the filesystem cleanly.

Examples:
  # Unmount the default daemon
  driftfs umount

  # Unmount with a custom PID file
  driftfs umount --pid-file /run/driftfs.pid`,
	RunE: runUmount,
}

func init() {
	umountCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/driftfs/driftfs.pid)")
	umountCmd.Flags().DurationVar(&umountTimeout, "timeout", 30*time.Second, "How long to wait for the daemon to exit")
}

func runUmount(cmd *cobra.Command, args []string) error {
	pidPath := pidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	pidData, err := os.ReadFile(pidPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no PID file at %s: is driftfs running?", pidPath)
		}
		return fmt.Errorf("failed to read PID file: %w", err)
	}

	var pid int
	if _, err := fmt.Sscanf(string(pidData), "%d", &pid); err != nil {
		return fmt.Errorf("invalid PID file %s: %w", pidPath, err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			_ = os.Remove(pidPath)
			return fmt.Errorf("driftfs (PID %d) is not running; removed stale PID file", pid)
		}
		return fmt.Errorf("failed to signal driftfs (PID %d): %w", pid, err)
	}

	// Wait for the process to exit; signal 0 probes liveness.
	deadline := time.Now().Add(umountTimeout)
	for time.Now().Before(deadline) {
		if err := process.Signal(syscall.Signal(0)); err != nil {
			fmt.Printf("driftfs (PID %d) stopped\n", pid)
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}

	return fmt.Errorf("driftfs (PID %d) did not exit within %s", pid, umountTimeout)
}
