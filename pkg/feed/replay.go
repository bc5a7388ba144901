package feed

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/anggasct/junction"
	"github.com/anggasct/junction/pkg/detect"
	"github.com/anggasct/junction/pkg/tracker"
)

const maxLineSize = 1024 * 1024

// lineReader yields the non-blank, non-comment lines of a JSONL stream
type lineReader struct {
	scanner *bufio.Scanner
	closer  io.Closer
	line    int
}

func newLineReader(r io.Reader) *lineReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lr := &lineReader{scanner: scanner}
	if c, ok := r.(io.Closer); ok {
		lr.closer = c
	}
	return lr
}

func (lr *lineReader) next(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !lr.scanner.Scan() {
			if err := lr.scanner.Err(); err != nil {
				return nil, fmt.Errorf("read line %d: %w", lr.line+1, err)
			}
			return nil, io.EOF
		}
		lr.line++
		text := bytes.TrimSpace(lr.scanner.Bytes())
		if len(text) == 0 || text[0] == '#' {
			continue
		}
		return text, nil
	}
}

func (lr *lineReader) Close() error {
	if lr.closer == nil {
		return nil
	}
	return lr.closer.Close()
}

// SnapshotReplay replays recorded pairs, one JSON object per line:
//
//	{"ns":{"queue_length":3,"avg_speed":1.2,"vehicle_count":3},"sn":{...}}
type SnapshotReplay struct {
	lines *lineReader
}

// NewSnapshotReplay reads pairs from r
func NewSnapshotReplay(r io.Reader) *SnapshotReplay {
	return &SnapshotReplay{lines: newLineReader(r)}
}

// OpenSnapshotReplay opens a JSONL file of pairs
func OpenSnapshotReplay(path string) (*SnapshotReplay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot replay: %w", err)
	}
	return NewSnapshotReplay(f), nil
}

// Next decodes the next pair
func (r *SnapshotReplay) Next(ctx context.Context) (junction.Pair, error) {
	line, err := r.lines.next(ctx)
	if err != nil {
		return junction.Pair{}, err
	}
	var pair junction.Pair
	if err := json.Unmarshal(line, &pair); err != nil {
		return junction.Pair{}, fmt.Errorf("decode pair on line %d: %w", r.lines.line, err)
	}
	return pair, nil
}

// Close closes the underlying reader when it is closable
func (r *SnapshotReplay) Close() error {
	return r.lines.Close()
}

// DetectionRecord is one line of a detection replay: both cameras' frames for the same instant
type DetectionRecord struct {
	NS detect.Frame `json:"ns"`
	SN detect.Frame `json:"sn"`
}

// DetectionReplay replays recorded detector output through per-approach trackers.
// A missing frame from one camera repeats that approach's last snapshot. When both
// cameras are missing the tick uses junction.FallbackPair.
type DetectionReplay struct {
	lines *lineReader
	ns    *detect.Processor
	sn    *detect.Processor
}

// NewDetectionReplay reads detection records from r
func NewDetectionReplay(r io.Reader, config tracker.Config) *DetectionReplay {
	return &DetectionReplay{
		lines: newLineReader(r),
		ns:    detect.NewProcessor(junction.ApproachA, config),
		sn:    detect.NewProcessor(junction.ApproachB, config),
	}
}

// OpenDetectionReplay opens a JSONL file of detection records
func OpenDetectionReplay(path string, config tracker.Config) (*DetectionReplay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open detection replay: %w", err)
	}
	return NewDetectionReplay(f, config), nil
}

// Next decodes and processes the next record
func (r *DetectionReplay) Next(ctx context.Context) (junction.Pair, error) {
	line, err := r.lines.next(ctx)
	if err != nil {
		return junction.Pair{}, err
	}
	var rec DetectionRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return junction.Pair{}, fmt.Errorf("decode detections on line %d: %w", r.lines.line, err)
	}
	if rec.NS.Missing && rec.SN.Missing {
		return junction.FallbackPair(), nil
	}
	return junction.Pair{
		NS: r.ns.Process(rec.NS),
		SN: r.sn.Process(rec.SN),
	}, nil
}

// Close closes the underlying reader when it is closable
func (r *DetectionReplay) Close() error {
	return r.lines.Close()
}
