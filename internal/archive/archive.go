// Package archive streams job output objects to a client, either one object
// as-is or several objects as a single ZIP archive.
package archive

import (
	"context"
	"errors"
	"io"
	"jobseries/internal/apperrors"
	"jobseries/internal/objectstore"
	"jobseries/internal/observability"
	"log/slog"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
)

// OpenFunc opens one object. Missing objects are reported as apperrors.ErrNotFound.
type OpenFunc func(ctx context.Context, key string) (*objectstore.Blob, error)

// Entry outcomes.
const (
	EntryWritten = "written" // copied in full
	EntryMissing = "missing" // object not found, no entry written
	EntryFailed  = "failed"  // open failed, or read failed and the entry is truncated
)

// EntryResult describes what happened to one requested key.
type EntryResult struct {
	Key    string
	Status string
	Bytes  int64
	Error  error
}

// Summary reports a finished or aborted archive.
type Summary struct {
	Entries []EntryResult
	Bytes   int64
	Started bool // response bytes were written; errors can no longer be reported cleanly
}

// Written returns the number of entries copied in full.
func (s *Summary) Written() int {
	n := 0
	for _, e := range s.Entries {
		if e.Status == EntryWritten {
			n++
		}
	}
	return n
}

// Options configure StreamArchive.
type Options struct {
	// BeforeWrite runs once, right before the first byte is written.
	// HTTP handlers set response headers here.
	BeforeWrite func()
	Metrics     *observability.Metrics
}

// Stream copies one open object to w and closes its body.
// Any error is a streaming failure since bytes may already be on the wire.
func Stream(w io.Writer, blob *objectstore.Blob) (int64, error) {
	defer blob.Body.Close()

	n, err := io.Copy(w, blob.Body)
	if err != nil {
		return n, apperrors.Streaming("stream "+blob.Key, err)
	}
	return n, nil
}

// StreamArchive writes the objects named by keys, in order, as one ZIP archive to w.
//
// Nothing is written until the first object opens. If no key can be opened the
// archive is never started and an error is returned: NotFound when every key
// was missing, otherwise Upstream. Keys that fail after the archive started
// are recorded in the summary and skipped; a read failure mid-entry truncates
// only that entry. A write failure to w aborts the archive with a Streaming error.
func StreamArchive(ctx context.Context, w io.Writer, open OpenFunc, keys []string, opts Options) (*Summary, error) {
	summary := &Summary{}
	var zw *zip.Writer
	var lastOpenErr error

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return summary, finishAborted(zw, err)
		}

		blob, err := open(ctx, key)
		if err != nil {
			status := EntryFailed
			if errors.Is(err, apperrors.ErrNotFound) {
				status = EntryMissing
			} else {
				lastOpenErr = err
			}
			slog.Warn("Skipping archive entry", "key", key, "error", err)
			summary.add(ctx, opts.Metrics, EntryResult{Key: key, Status: status, Error: err})
			continue
		}

		if zw == nil {
			if opts.BeforeWrite != nil {
				opts.BeforeWrite()
			}
			zw = zip.NewWriter(w)
			summary.Started = true
		}

		entry, err := writeEntry(zw, blob)
		summary.Bytes += entry.Bytes
		if err != nil {
			summary.add(ctx, opts.Metrics, entry)
			return summary, finishAborted(zw, err)
		}
		if entry.Error != nil {
			slog.Warn("Archive entry truncated", "key", key, "bytes", entry.Bytes, "error", entry.Error)
		}
		summary.add(ctx, opts.Metrics, entry)
	}

	if zw == nil {
		if lastOpenErr != nil {
			return summary, lastOpenErr
		}
		return summary, apperrors.NotFound("files", strings.Join(keys, ","))
	}

	if err := zw.Close(); err != nil {
		return summary, apperrors.Streaming("finish archive", err)
	}
	if summary.Written() == 0 {
		// Headers are already out, so the client still sees a 200.
		slog.Error("Archive contains no complete entries", "keys", len(keys), "entries", len(summary.Entries))
		if opts.Metrics != nil {
			opts.Metrics.RecordArchiveIncomplete(ctx)
		}
	}
	return summary, nil
}

// writeEntry copies blob into a new archive entry. The returned error is a
// write failure; a read failure is reported in the entry result instead.
func writeEntry(zw *zip.Writer, blob *objectstore.Blob) (EntryResult, error) {
	defer blob.Body.Close()

	result := EntryResult{Key: blob.Key, Status: EntryWritten}
	fw, err := zw.CreateHeader(&zip.FileHeader{
		Name:     blob.Key,
		Method:   zip.Deflate,
		Modified: time.Now().UTC(),
	})
	if err != nil {
		result.Status = EntryFailed
		result.Error = err
		return result, apperrors.Streaming("create archive entry "+blob.Key, err)
	}

	src := &readTracker{r: blob.Body}
	result.Bytes, err = io.Copy(fw, src)
	switch {
	case src.err != nil:
		result.Status = EntryFailed
		result.Error = src.err
		return result, nil
	case err != nil:
		result.Status = EntryFailed
		result.Error = err
		return result, apperrors.Streaming("write archive entry "+blob.Key, err)
	}
	return result, nil
}

func finishAborted(zw *zip.Writer, cause error) error {
	if zw == nil {
		return cause
	}
	// Close flushes the central directory when the writer is still healthy.
	_ = zw.Close()
	if errors.Is(cause, apperrors.ErrStreaming) {
		return cause
	}
	return apperrors.Streaming("archive aborted", cause)
}

func (s *Summary) add(ctx context.Context, m *observability.Metrics, e EntryResult) {
	s.Entries = append(s.Entries, e)
	if m != nil {
		m.RecordArchiveEntry(ctx, e.Status)
	}
}

// readTracker remembers the first non-EOF error from the source, so a failed
// copy can be attributed to the object store rather than the client.
type readTracker struct {
	r   io.Reader
	err error
}

func (t *readTracker) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && t.err == nil {
		t.err = err
	}
	return n, err
}
