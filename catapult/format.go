package catapult

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// Formatter serialises a Document into a byte slice. Alternative renderers
// (gzip-compressed, Perfetto protobuf, ...) can be added by implementing
// this interface without touching Source or the transport a caller pairs
// it with.
type Formatter interface {
	Format(doc Document) ([]byte, error)
}

// FormatConfig controls DocumentFormatter behaviour.
type FormatConfig struct {
	// PrettyPrint emits indented, human-readable JSON when true.
	PrettyPrint bool

	// Indent is the indent string used when PrettyPrint=true. Defaults to
	// two spaces when empty and PrettyPrint=true.
	Indent string
}

// DocumentFormatter implements Formatter using encoding/json. It is safe
// for concurrent use; all fields are immutable after construction.
type DocumentFormatter struct {
	cfg    FormatConfig
	logger *slog.Logger
}

// NewFormatter constructs a DocumentFormatter. A nil logger is replaced
// with a no-op one so the formatter never panics on a nil receiver.
func NewFormatter(cfg FormatConfig, logger *slog.Logger) *DocumentFormatter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if cfg.PrettyPrint && cfg.Indent == "" {
		cfg.Indent = "  "
	}
	return &DocumentFormatter{cfg: cfg, logger: logger}
}

// Format serialises doc to Catapult's JSON Object Format.
func (f *DocumentFormatter) Format(doc Document) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if f.cfg.PrettyPrint {
		data, err = json.MarshalIndent(doc, "", f.cfg.Indent)
	} else {
		data, err = json.Marshal(doc)
	}
	if err != nil {
		f.logger.Error("catapult: format: marshal failed", "error", err.Error())
		return nil, fmt.Errorf("catapult: format: marshal: %w", err)
	}
	f.logger.Debug("catapult: formatted document", "events", len(doc.TraceEvents), "bytes", len(data))
	return data, nil
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
