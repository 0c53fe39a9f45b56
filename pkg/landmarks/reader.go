package landmarks

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Frame is one frame of perception output. Landmarks is nil when no face
// was detected.
type Frame struct {
	Timestamp time.Time
	Width     int
	Height    int
	Landmarks Set
}

// HasFace reports whether the frame carries landmarks.
func (f Frame) HasFace() bool {
	return len(f.Landmarks) > 0
}

type wireFrame struct {
	TimestampMS int64 `json:"ts_ms"`
	Width       int   `json:"width"`
	Height      int   `json:"height"`
	Landmarks   Set   `json:"landmarks"`
}

// MarshalJSON encodes the frame in the provider wire format.
func (f Frame) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireFrame{
		TimestampMS: f.Timestamp.UnixMilli(),
		Width:       f.Width,
		Height:      f.Height,
		Landmarks:   f.Landmarks,
	})
}

// UnmarshalJSON decodes the provider wire format.
func (f *Frame) UnmarshalJSON(data []byte) error {
	var w wireFrame
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*f = Frame{
		Timestamp: time.UnixMilli(w.TimestampMS),
		Width:     w.Width,
		Height:    w.Height,
		Landmarks: w.Landmarks,
	}
	return nil
}

// maxLineSize bounds a single frame line; a 478-point mesh is well under 64KiB.
const maxLineSize = 1 << 20

// Reader decodes a JSON Lines stream of frames.
type Reader struct {
	scanner *bufio.Scanner
	line    int
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Reader{scanner: s}
}

// Next returns the next frame. Blank lines are skipped.
// It returns io.EOF when the stream is exhausted.
func (r *Reader) Next() (Frame, error) {
	for r.scanner.Scan() {
		r.line++
		line := bytes.TrimSpace(r.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var f Frame
		if err := json.Unmarshal(line, &f); err != nil {
			return Frame{}, fmt.Errorf("line %d: %w", r.line, err)
		}
		return f, nil
	}
	if err := r.scanner.Err(); err != nil {
		return Frame{}, err
	}
	return Frame{}, io.EOF
}

// LoadFrame reads a single JSON frame from a file.
func LoadFrame(path string) (Frame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to read frame: %w", err)
	}
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("failed to parse frame: %w", err)
	}
	return f, nil
}
