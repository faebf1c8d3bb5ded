// Package quota computes disk usage under a mount root and gates writes
// against the mount's configured ceilings.
//
// Usage is recomputed on every quota-gated operation and never cached. The
// sample is best-effort: it is not transactional against concurrent writers,
// which is why PUT holds the mount write lock across the pre-check and the
// streaming write.
package quota

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/browncloud/davfs/internal/logger"
	"github.com/browncloud/davfs/pkg/registry"
)

// ErrQuotaExceeded means a write would push the mount past its byte or
// file-count ceiling.
var ErrQuotaExceeded = errors.New("quota exceeded")

// Usage is a point-in-time sample of the space consumed under a mount root.
type Usage struct {
	Bytes uint64
	Files uint64
}

// Compute walks root and sums regular-file sizes and counts.
//
// Symbolic links are neither followed nor counted, so link loops cannot hang
// the walk and links cannot smuggle bytes past the quota. Entries that fail
// to stat or list are logged and contribute zero; the walk never fails as a
// whole.
func Compute(root string) Usage {
	var u Usage
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warn("quota walk: failed to visit %q: %v", path, err)
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			logger.Warn("quota walk: failed to stat %q: %v", path, err)
			return nil
		}
		u.Bytes += uint64(info.Size())
		u.Files++
		return nil
	})
	if err != nil {
		logger.Warn("quota walk: %q: %v", root, err)
	}
	return u
}

// CheckBeforeWrite is the advisory pre-write gate.
//
// With a byte quota configured, the write is denied when current usage plus
// the incoming length reaches the ceiling. With a file-count limit configured
// and a new file being created, the write is denied when the new count would
// reach the limit. Neither check reserves anything; the per-chunk re-check
// during streaming catches bodies that lied about their length.
func CheckBeforeWrite(m *registry.Mount, u Usage, incoming uint64, creating bool) error {
	if m.QuotaBytes > 0 && u.Bytes+incoming >= m.QuotaBytes {
		return fmt.Errorf("mount %q: %d bytes used, %d incoming, ceiling %d: %w",
			m.URLPrefix, u.Bytes, incoming, m.QuotaBytes, ErrQuotaExceeded)
	}
	if creating && m.MaxFiles > 0 && u.Files+1 >= m.MaxFiles {
		return fmt.Errorf("mount %q: %d files used, ceiling %d: %w",
			m.URLPrefix, u.Files, m.MaxFiles, ErrQuotaExceeded)
	}
	return nil
}

// CheckTree gates a multi-file transfer such as COPY. The whole incoming
// tree is measured up front, so unlike CheckBeforeWrite this also accounts
// for more than one new file at a time.
func CheckTree(m *registry.Mount, u Usage, incomingBytes, incomingFiles uint64) error {
	if m.QuotaBytes > 0 && u.Bytes+incomingBytes >= m.QuotaBytes {
		return fmt.Errorf("mount %q: %d bytes used, %d incoming, ceiling %d: %w",
			m.URLPrefix, u.Bytes, incomingBytes, m.QuotaBytes, ErrQuotaExceeded)
	}
	if m.MaxFiles > 0 && u.Files+incomingFiles >= m.MaxFiles {
		return fmt.Errorf("mount %q: %d files used, %d incoming, ceiling %d: %w",
			m.URLPrefix, u.Files, incomingFiles, m.MaxFiles, ErrQuotaExceeded)
	}
	return nil
}

// ExceededDuringWrite re-evaluates the byte ceiling as a PUT body streams in.
// usedBefore is the usage sampled before the write began and written the
// bytes flushed so far, so the ceiling can be overshot by at most one chunk.
func ExceededDuringWrite(m *registry.Mount, usedBefore, written uint64) bool {
	return m.QuotaBytes > 0 && usedBefore+written >= m.QuotaBytes
}
