package agent

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// LogPath returns the capture file for taskID under dir.
func LogPath(dir, taskID string) string {
	if dir == "" {
		return ""
	}
	name := strings.NewReplacer("/", "_", string(os.PathSeparator), "_").Replace(taskID)
	return filepath.Join(dir, name+".log")
}

// LogTail returns the last n lines captured for taskID.
func LogTail(dir, taskID string, n int) ([]string, error) {
	f, err := os.Open(LogPath(dir, taskID))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ring := make([]string, 0, min(n, 1024))
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if n <= 0 {
			continue
		}
		if len(ring) == n {
			ring = append(ring[:0], ring[1:]...)
		}
		ring = append(ring, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return ring, err
	}
	return ring, nil
}
