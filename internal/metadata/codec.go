package metadata

import (
	"encoding/json"
	"fmt"
)

// SnapshotCorrupt is returned by Decode when the document is not
// well-formed, or a required field is missing or malformed.
type SnapshotCorrupt struct {
	Reason string
	Cause  error
}

func (e *SnapshotCorrupt) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("snapshot corrupt: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("snapshot corrupt: %s", e.Reason)
}

func (e *SnapshotCorrupt) Unwrap() error { return e.Cause }

// wireEntry mirrors original_source/context.cc's SerializeObjectMetaData:
// a flat JSON array of {path, size[, mtime_ms]} objects. mtime_ms is
// optional on decode so legacy snapshots (written before it existed) still
// load, defaulting to 0.
type wireEntry struct {
	Path    *string `json:"path"`
	Size    *uint64 `json:"size"`
	MtimeMS int64   `json:"mtime_ms,omitempty"`
}

// Encode serializes xs as a self-describing JSON document. The document is
// an array, so ordering of the input slice is preserved byte-for-byte but
// carries no semantic meaning (spec: "ordering in the snapshot is not
// significant").
func Encode(xs []ObjectEntry) ([]byte, error) {
	wire := make([]wireEntry, len(xs))
	for i, x := range xs {
		path := x.Path
		size := x.Size
		wire[i] = wireEntry{Path: &path, Size: &size, MtimeMS: x.MtimeMS}
	}
	return json.Marshal(wire)
}

// Decode parses a document produced by Encode (or a legacy document lacking
// mtime_ms). It returns *SnapshotCorrupt if the document is not well-formed
// JSON, or if any entry is missing its path or size field.
func Decode(data []byte) ([]ObjectEntry, error) {
	var wire []wireEntry
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, &SnapshotCorrupt{Reason: "malformed JSON", Cause: err}
	}

	xs := make([]ObjectEntry, len(wire))
	for i, w := range wire {
		if w.Path == nil {
			return nil, &SnapshotCorrupt{Reason: fmt.Sprintf("entry %d missing path", i)}
		}
		if w.Size == nil {
			return nil, &SnapshotCorrupt{Reason: fmt.Sprintf("entry %d missing size", i)}
		}
		xs[i] = ObjectEntry{Path: *w.Path, Size: *w.Size, MtimeMS: w.MtimeMS}
	}
	return xs, nil
}
