// Package artifact reads the per-connection files the instrumented tool
// leaves in a run: the event document and the packet capture.
package artifact

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/roach88/snitchkit/internal/runs"
)

var (
	// ErrMissing indicates an expected artifact file does not exist.
	ErrMissing = errors.New("artifact missing")

	// ErrEmpty indicates an artifact file exists but has no content.
	ErrEmpty = errors.New("artifact empty")
)

// Timestamp is the time an intercepted call returned.
type Timestamp struct {
	Sec  int64 `json:"sec"`
	Usec int64 `json:"usec"`
}

// Event is one intercepted socket call.
type Event struct {
	Type        string         `json:"type"`
	Timestamp   Timestamp      `json:"timestamp"`
	ReturnValue int64          `json:"return_value"`
	Success     bool           `json:"success"`
	ErrorStr    string         `json:"error_str,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
}

// ReadEvents decodes the event document at path. The document may be a
// JSON array of events or a sequence of concatenated event objects.
func ReadEvents(path string) ([]Event, error) {
	data, err := readArtifact(path)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var events []Event
		if err := json.Unmarshal(trimmed, &events); err != nil {
			return nil, fmt.Errorf("decode events %s: %w", path, err)
		}
		return events, nil
	}

	var events []Event
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	for {
		var ev Event
		err := dec.Decode(&ev)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode events %s: %w", path, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// EventTypes returns the type of each event, in order.
func EventTypes(events []Event) []string {
	types := make([]string, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}

// Report describes the artifacts of one connection.
type Report struct {
	Connection    int    `json:"connection"`
	MetadataPath  string `json:"metadata_path"`
	MetadataBytes int64  `json:"metadata_bytes"`
	CapturePath   string `json:"capture_path"`
	CaptureBytes  int64  `json:"capture_bytes"`
}

// CheckConnection verifies that both artifacts of connection id exist and are
// non-empty.
func CheckConnection(run runs.Run, id int) (Report, error) {
	rep := Report{
		Connection:   id,
		MetadataPath: run.MetadataPath(id),
		CapturePath:  run.CapturePath(id),
	}

	var err error
	if rep.MetadataBytes, err = sizeOf(rep.MetadataPath); err != nil {
		return rep, err
	}
	if rep.CaptureBytes, err = sizeOf(rep.CapturePath); err != nil {
		return rep, err
	}
	return rep, nil
}

// pcap magic numbers: microsecond and nanosecond resolution, both byte orders.
var captureMagics = []uint32{0xa1b2c3d4, 0xa1b23c4d}

// CaptureHeaderValid reports whether the file at path starts with a pcap
// magic number. Packets are not decoded.
func CaptureHeaderValid(path string) (bool, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("%w: %s", ErrMissing, path)
	}
	if err != nil {
		return false, fmt.Errorf("open capture: %w", err)
	}
	defer f.Close()

	var hdr [4]byte
	if _, err := io.ReadFull(f, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return false, nil
		}
		return false, fmt.Errorf("read capture header: %w", err)
	}

	be := binary.BigEndian.Uint32(hdr[:])
	le := binary.LittleEndian.Uint32(hdr[:])
	for _, m := range captureMagics {
		if be == m || le == m {
			return true, nil
		}
	}
	return false, nil
}

func sizeOf(path string) (int64, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("%w: %s", ErrMissing, path)
	}
	if err != nil {
		return 0, fmt.Errorf("stat artifact: %w", err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("artifact %s is a directory", path)
	}
	if info.Size() == 0 {
		return 0, fmt.Errorf("%w: %s", ErrEmpty, path)
	}
	return info.Size(), nil
}

func readArtifact(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrMissing, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmpty, path)
	}
	return data, nil
}
