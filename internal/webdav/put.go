package webdav

import (
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/browncloud/davfs/internal/authz"
	"github.com/browncloud/davfs/internal/logger"
	"github.com/browncloud/davfs/internal/quota"
)

// writeChunkSize is the buffer used to stream PUT bodies. The quota ceiling
// is re-checked after every chunk, so it can be overshot by at most this
// much.
const writeChunkSize = 32 * 1024

// handlePut stores a request body as a file.
//
// Overwriting an existing file needs the write permission, creating a new one
// the new_file permission. The write holds the mount's write lock across the
// quota pre-check and the streaming copy, so two quota-gated writes on the
// same mount cannot interleave their accounting.
func (d *Dispatcher) handlePut(w http.ResponseWriter, r *http.Request, rc *RequestContext) {
	info, statErr := os.Stat(rc.LocalPath)
	if statErr == nil && info.IsDir() {
		writeStatus(w, http.StatusBadRequest)
		return
	}
	creating := os.IsNotExist(statErr)

	if authz.IsACLPath(rc.LocalPath) {
		if !d.authorizeACLTarget(w, r, rc) {
			return
		}
	} else {
		kind := authz.PermWrite
		if creating {
			kind = authz.PermNewFile
		}
		if !d.authorize(w, r, rc, kind) {
			return
		}
	}

	rc.Mount.LockWrites()
	defer rc.Mount.UnlockWrites()

	used := quota.Compute(rc.Mount.LocalRoot)
	var incoming uint64
	if r.ContentLength > 0 {
		incoming = uint64(r.ContentLength)
	}
	if err := quota.CheckBeforeWrite(rc.Mount, used, incoming, creating); err != nil {
		logger.Warn("PUT %s: %v", rc.Path, err)
		d.metrics.RecordQuotaRejection(rc.Mount.URLPrefix)
		writeStatus(w, http.StatusForbidden)
		return
	}

	f, err := os.OpenFile(rc.LocalPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		if os.IsNotExist(err) {
			// Missing intermediate collection.
			writeStatus(w, http.StatusNotFound)
			return
		}
		internalError(w, r, rc, err)
		return
	}

	written, copyErr := d.streamBody(f, r, rc, used.Bytes)
	closeErr := f.Close()
	d.metrics.AddBytesTransferred(rc.Mount.URLPrefix, "write", int64(written))

	if copyErr == errQuotaMidWrite {
		// The truncated partial file stays on disk; it is not rolled back.
		logger.Warn("PUT %s: quota ceiling hit after %d bytes, aborting (mount %q)",
			rc.Path, written, rc.Mount.URLPrefix)
		d.metrics.RecordQuotaRejection(rc.Mount.URLPrefix)
		writeStatus(w, http.StatusForbidden)
		return
	}
	if copyErr != nil {
		internalError(w, r, rc, copyErr)
		return
	}
	if closeErr != nil {
		internalError(w, r, rc, closeErr)
		return
	}

	if creating {
		logger.Info("PUT %s: created %q (%d bytes, mount %q)",
			rc.Path, rc.LocalPath, written, rc.Mount.URLPrefix)
		writeStatus(w, http.StatusCreated)
		return
	}
	logger.Info("PUT %s: overwrote %q (%d bytes, mount %q)",
		rc.Path, rc.LocalPath, written, rc.Mount.URLPrefix)
	writeStatus(w, http.StatusOK)
}

// errQuotaMidWrite signals that the streaming copy hit the byte ceiling.
var errQuotaMidWrite = errSentinel("quota exceeded during write")

type errSentinel string

func (e errSentinel) Error() string { return string(e) }

// streamBody copies the request body in fixed-size chunks, re-checking the
// quota after each one against the usage sampled before the write began.
func (d *Dispatcher) streamBody(f *os.File, r *http.Request, rc *RequestContext, usedBefore uint64) (uint64, error) {
	buf := make([]byte, writeChunkSize)
	var written uint64
	for {
		n, readErr := r.Body.Read(buf)
		if n > 0 {
			if _, err := f.Write(buf[:n]); err != nil {
				return written, err
			}
			written += uint64(n)
			if quota.ExceededDuringWrite(rc.Mount, usedBefore, written) {
				return written, errQuotaMidWrite
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return written, nil
			}
			return written, readErr
		}
	}
}
