// Package diskspace reports free space on the filesystem backing a
// download directory, per-platform. Grounded on the teacher's
// internal/downloader/diskspace_*.go build-tagged checkDiskSpace
// methods, lifted out of the Manager and generalized into a
// standalone function the orchestrator calls as a pre-flight guard.
package diskspace

// CheckEnough returns apperrors.InsufficientSpace-shaped information
// when fewer than required bytes are free at path. A required of 0
// disables the check.
func CheckEnough(path string, required uint64) (available uint64, enough bool, err error) {
	if required == 0 {
		return 0, true, nil
	}
	available, err = Available(path)
	if err != nil {
		return 0, false, err
	}
	return available, available >= required, nil
}
