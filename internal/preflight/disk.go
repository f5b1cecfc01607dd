package preflight

import (
	"fmt"
	"syscall"

	"github.com/dustin/go-humanize"
)

// MinDiskSpaceBytes is the free space the data directory needs for a
// badger value log and the keyword corpus file.
const MinDiskSpaceBytes uint64 = 100 * humanize.MiByte

// CheckDiskSpace reports the free space on the filesystem holding path.
func (c *Checker) CheckDiskSpace(path string) CheckResult {
	result := CheckResult{Name: "disk_space", Required: true}

	var fs syscall.Statfs_t
	if err := syscall.Statfs(path, &fs); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot stat filesystem: %v", err)
		return result
	}

	free := fs.Bavail * uint64(fs.Bsize)
	result.Message = fmt.Sprintf("%s free (minimum: %s)", humanize.IBytes(free), humanize.IBytes(MinDiskSpaceBytes))
	result.Status = StatusPass
	if free < MinDiskSpaceBytes {
		result.Status = StatusFail
		result.Details = "Free space on this filesystem or set data_dir elsewhere"
	}
	return result
}
