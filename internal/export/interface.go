package export

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/iksnae/chat-session/internal"
)

// Exporter defines the interface for all export formats
type Exporter interface {
	Export(session *internal.Session, w io.Writer) error
	Extension() string
}

// NewExporter creates a new exporter based on format
func NewExporter(format string) (Exporter, error) {
	switch strings.ToLower(format) {
	case "jsonl":
		return &JSONLExporter{}, nil
	case "md", "markdown":
		return &MarkdownExporter{}, nil
	case "yaml", "yml":
		return &YAMLExporter{}, nil
	case "json":
		return &JSONExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: jsonl, md, yaml, json)", format)
	}
}

// FileName returns the file name used for a session export
func FileName(e Exporter, session *internal.Session) string {
	id := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(session.ID)
	return fmt.Sprintf("session_%s.%s", id, e.Extension())
}

// WriteFile exports session into dir and returns the written path
func WriteFile(e Exporter, session *internal.Session, dir string) (string, error) {
	path := filepath.Join(dir, FileName(e, session))
	fail := func(err error) (string, error) {
		return "", &internal.ExportError{Format: e.Extension(), Path: path, Err: err}
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fail(err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fail(err)
	}

	w := bufio.NewWriter(f)
	if err := e.Export(session, w); err != nil {
		_ = f.Close()
		return fail(err)
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fail(err)
	}
	if err := f.Close(); err != nil {
		return fail(err)
	}
	return path, nil
}
