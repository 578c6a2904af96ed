package poller

import (
	"github.com/namacap/namacap/internal/task"
)

// SpawnLauncher starts capture processes as detached children of the
// current process, so a poller restart never takes running captures down
// with it.
type SpawnLauncher struct {
	bin  string
	args []string
}

// NewSpawnLauncher creates a launcher invoking the capture binary at bin
// with the given extra arguments before the video id.
func NewSpawnLauncher(bin string, args ...string) *SpawnLauncher {
	return &SpawnLauncher{bin: bin, args: args}
}

// Launch implements CaptureLauncher.
func (l *SpawnLauncher) Launch(videoID string) (int, error) {
	args := make([]string, 0, len(l.args)+1)
	args = append(args, l.args...)
	args = append(args, videoID)
	return task.Spawn(l.bin, args...)
}
