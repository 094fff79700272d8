package bag

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/mxrc-robotics/mxrc/pkg/mxlog"
)

// RetentionPolicy bounds how many bag files (or how old) are kept in a
// directory; whichever limit is set triggers eviction. DiskPressureBytes,
// when set, evicts the oldest file whenever the directory's total size
// exceeds it, regardless of age/count.
type RetentionPolicy struct {
	MaxAge            time.Duration
	MaxCount          int
	DiskPressureBytes int64
}

// Retention enforces a RetentionPolicy against a directory of bag files,
// always evicting oldest-by-modtime first.
type Retention struct {
	dir    string
	policy RetentionPolicy
	logger *mxlog.Logger
}

func NewRetention(dir string, policy RetentionPolicy, logger *mxlog.Logger) *Retention {
	return &Retention{dir: dir, policy: policy, logger: logger}
}

type bagFileInfo struct {
	path    string
	size    int64
	modTime time.Time
}

// Enforce scans the directory once and removes files violating the policy,
// returning the paths removed.
func (r *Retention) Enforce() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, err
	}

	var files []bagFileInfo
	var totalSize int64
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".mxbag" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, bagFileInfo{path: filepath.Join(r.dir, e.Name()), size: info.Size(), modTime: info.ModTime()})
		totalSize += info.Size()
	}

	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })

	var removed []string
	now := time.Now()

	for len(files) > 0 && r.violates(files, totalSize, now) {
		victim := files[0]
		if err := os.Remove(victim.path); err != nil {
			if r.logger != nil {
				r.logger.WithComponent("bag_retention").WithError(err).Warn("eviction failed")
			}
			break
		}
		totalSize -= victim.size
		removed = append(removed, victim.path)
		files = files[1:]
	}

	return removed, nil
}

func (r *Retention) violates(files []bagFileInfo, totalSize int64, now time.Time) bool {
	if r.policy.MaxCount > 0 && len(files) > r.policy.MaxCount {
		return true
	}
	if r.policy.MaxAge > 0 && now.Sub(files[0].modTime) > r.policy.MaxAge {
		return true
	}
	if r.policy.DiskPressureBytes > 0 && totalSize > r.policy.DiskPressureBytes {
		return true
	}
	return false
}
