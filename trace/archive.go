package trace

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vantus-ai/webpilot/types"
)

// Source is the minimal read surface of a trace container. The analyzer
// depends on this interface rather than on the zip format directly so tests
// can substitute instrumented or in-memory sources.
type Source interface {
	// Names lists member names in archive order.
	Names() []string
	// ReadMember returns the raw bytes of the named member.
	ReadMember(name string) ([]byte, error)
	// Close releases the underlying container.
	Close() error
}

// Archive is a zip-backed Source.
type Archive struct {
	path string
	zr   *zip.ReadCloser
}

// ResolveTracePath applies the nested-directory rule for recorded traces:
// a directory resolves to <dir>/trace.zip, and when trace.zip is itself a
// directory holding per-run archives, to the first *.zip file inside it.
func ResolveTracePath(path string) (string, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return "", types.Errorf(types.ErrNotFound, "trace file not found: %s", path)
	}
	if err != nil {
		return "", types.Errorf(types.ErrNotFound, "trace file not accessible: %s", path).WithCause(err)
	}
	if !info.IsDir() {
		return path, nil
	}

	nested := filepath.Join(path, "trace.zip")
	nestedInfo, err := os.Stat(nested)
	if err != nil {
		return "", types.Errorf(types.ErrInvalidFormat, "invalid trace directory structure: %s", path)
	}
	if !nestedInfo.IsDir() {
		return nested, nil
	}

	matches, err := filepath.Glob(filepath.Join(nested, "*.zip"))
	if err != nil || len(matches) == 0 {
		return "", types.Errorf(types.ErrInvalidFormat, "no trace files found under %s", nested)
	}
	sort.Strings(matches)
	return matches[0], nil
}

// OpenArchive opens the archive at path, resolving nested recording
// directories first. It fails with NOT_FOUND when the path does not exist
// and INVALID_FORMAT when the file is not a valid zip container.
func OpenArchive(path string) (*Archive, error) {
	resolved, err := ResolveTracePath(path)
	if err != nil {
		return nil, err
	}

	zr, err := zip.OpenReader(resolved)
	if err != nil {
		return nil, types.Errorf(types.ErrInvalidFormat, "invalid trace file format: %s", resolved).WithCause(err)
	}
	return &Archive{path: resolved, zr: zr}, nil
}

// Path returns the resolved filesystem path of the container.
func (a *Archive) Path() string {
	return a.path
}

// Names implements Source.
func (a *Archive) Names() []string {
	names := make([]string, 0, len(a.zr.File))
	for _, f := range a.zr.File {
		names = append(names, f.Name)
	}
	return names
}

// ReadMember implements Source.
func (a *Archive) ReadMember(name string) ([]byte, error) {
	for _, f := range a.zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open member %s: %w", name, err)
		}
		defer rc.Close()

		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read member %s: %w", name, err)
		}
		return data, nil
	}
	return nil, types.Errorf(types.ErrInvalidFormat, "archive member not found: %s", name)
}

// Close implements Source.
func (a *Archive) Close() error {
	return a.zr.Close()
}

// findMember returns the first member name with the given suffix, or "".
func findMember(src Source, suffix string) string {
	for _, name := range src.Names() {
		if strings.HasSuffix(name, suffix) {
			return name
		}
	}
	return ""
}
