package element

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/cpscan/engine/internal/singleton"
)

// NestedArchiveHandler owns extraction of archives-within-archives, and
// the temporary artifacts it extracts; on scan termination the scan
// releases the handler, which releases them. Each distinct (outer
// archive, inner chain) pair is extracted to a temp file at most once,
// cached by identity via the same Singleton Map shape used for Classpath
// Elements.
type NestedArchiveHandler struct {
	extracted *singleton.Map[string] // identity -> resolved temp file path

	mu    sync.Mutex
	owned []string // temp files this handler is responsible for removing
}

func NewNestedArchiveHandler() *NestedArchiveHandler {
	return &NestedArchiveHandler{extracted: singleton.New[string]()}
}

// Expand resolves an outer archive path plus an inner-archive chain to a
// filesystem path openable as a plain zip archive, extracting each link
// of the chain to a temp file in turn and caching every intermediate
// result.
func (h *NestedArchiveHandler) Expand(outerArchivePath string, innerChain []string) (string, error) {
	if len(innerChain) == 0 {
		return outerArchivePath, nil
	}

	identity := outerArchivePath + "!" + strings.Join(innerChain, "!")
	return h.extracted.Get(identity, func() (string, error) {
		current := outerArchivePath
		for _, innerPath := range innerChain {
			next, err := h.extractEntry(current, innerPath)
			if err != nil {
				return "", fmt.Errorf("extracting %s from %s: %w", innerPath, current, err)
			}
			current = next
		}
		return current, nil
	})
}

// extractEntry pulls one named entry out of a zip archive into a fresh
// temp file and records it for later cleanup.
func (h *NestedArchiveHandler) extractEntry(archivePath, entryPath string) (string, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", err
	}
	defer zr.Close()

	var target *zip.File
	for _, f := range zr.File {
		if f.Name == entryPath {
			target = f
			break
		}
	}
	if target == nil {
		return "", fmt.Errorf("entry %q not found", entryPath)
	}

	src, err := target.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "cpscan-nested-*.jar")
	if err != nil {
		return "", err
	}
	defer tmp.Close()

	if _, err := io.Copy(tmp, src); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}

	h.mu.Lock()
	h.owned = append(h.owned, tmp.Name())
	h.mu.Unlock()

	return tmp.Name(), nil
}

// Close releases every temp file this handler extracted. remove controls
// whether files are actually deleted: callers pass true only on the scan's
// success path when the scan spec requests cleanup; otherwise the temp
// files outlive the scan.
func (h *NestedArchiveHandler) Close(remove bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !remove {
		return nil
	}
	var firstErr error
	for _, path := range h.owned {
		if err := os.Remove(path); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	h.owned = nil
	return firstErr
}
