package chatstream

import (
	"bytes"
	"encoding/json"
	"log/slog"

	"github.com/user/gatewaychat/internal/types"
)

// DataPrefix marks the lines that carry records. Every other line is
// ignored, which leaves room for padding and comments in the stream.
const DataPrefix = "data:"

// Handler receives the decoded signals of one turn. Nil callbacks are
// skipped. Callbacks run synchronously on the reading goroutine.
type Handler struct {
	// OnChunk receives each text delta, never the cumulative text.
	OnChunk func(delta string)

	// OnDone fires when the turn completed with the resolved session id.
	OnDone func(sessionID types.SessionID)

	// OnBlocked fires when the backend suppressed the response. The reason
	// is never empty.
	OnBlocked func(reason string)
}

// State is the decoder's position relative to line boundaries.
type State int

const (
	// StateReading means no partial line is buffered.
	StateReading State = iota
	// StateCarrying means the last feed ended mid-line and the tail is
	// buffered until the rest arrives.
	StateCarrying
)

func (s State) String() string {
	if s == StateCarrying {
		return "carrying"
	}
	return "reading"
}

// Stats counts what a decoder has seen so far.
type Stats struct {
	Records  int // data records dispatched
	Chunks   int
	Skipped  int // malformed records
	Blocked  bool
	Done     bool
	Terminal bool // a done or blocked record was seen
}

// record is the JSON payload of one data line. At most one signal is
// expected per record.
type record struct {
	Chunk     string          `json:"chunk"`
	Blocked   bool            `json:"blocked"`
	Reason    *string         `json:"reason"`
	Done      bool            `json:"done"`
	SessionID types.SessionID `json:"session_id"`
	Error     *string         `json:"error"`
}

// Decoder turns raw stream bytes into Handler calls. Feed may be called
// with arbitrary slices of the stream; a line split across feeds is
// reassembled before it is decoded. A Decoder is not safe for concurrent
// use.
type Decoder struct {
	handler Handler
	state   State
	partial []byte
	stats   Stats
	err     error
}

func NewDecoder(h Handler) *Decoder {
	return &Decoder{handler: h}
}

func (d *Decoder) State() State { return d.state }

func (d *Decoder) Stats() Stats { return d.stats }

// Feed decodes every complete line in p and buffers an unterminated tail.
// It returns a *StreamError if the backend reported a failure; once that
// happens every later call returns the same error.
func (d *Decoder) Feed(p []byte) error {
	if d.err != nil {
		return d.err
	}
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			d.partial = append(d.partial, p...)
			d.state = StateCarrying
			return nil
		}

		line := p[:i]
		if d.state == StateCarrying {
			d.partial = append(d.partial, line...)
			line = d.partial
		}
		err := d.processLine(line)
		d.partial = d.partial[:0]
		d.state = StateReading
		if err != nil {
			d.err = err
			return err
		}
		p = p[i+1:]
	}
	return nil
}

// Flush decodes a final line that was not newline-terminated. Call it once
// the transport reports end of stream.
func (d *Decoder) Flush() error {
	if d.err != nil {
		return d.err
	}
	if d.state != StateCarrying {
		return nil
	}
	err := d.processLine(d.partial)
	d.partial = d.partial[:0]
	d.state = StateReading
	if err != nil {
		d.err = err
	}
	return err
}

func (d *Decoder) processLine(line []byte) error {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if !bytes.HasPrefix(line, []byte(DataPrefix)) {
		return nil
	}
	payload := line[len(DataPrefix):]
	payload = bytes.TrimPrefix(payload, []byte(" "))
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}

	var rec record
	if err := json.Unmarshal(payload, &rec); err != nil {
		d.stats.Skipped++
		slog.Debug("skipping malformed stream record", "error", err, "bytes", len(payload))
		return nil
	}
	d.stats.Records++

	if rec.Error != nil {
		return &StreamError{Message: *rec.Error}
	}
	if rec.Chunk != "" {
		d.stats.Chunks++
		if d.handler.OnChunk != nil {
			d.handler.OnChunk(rec.Chunk)
		}
	}
	if rec.Blocked {
		d.stats.Blocked = true
		d.stats.Terminal = true
		reason := types.DefaultBlockReason
		if rec.Reason != nil && *rec.Reason != "" {
			reason = *rec.Reason
		}
		if d.handler.OnBlocked != nil {
			d.handler.OnBlocked(reason)
		}
	}
	if rec.Done {
		d.stats.Done = true
		d.stats.Terminal = true
		if d.handler.OnDone != nil {
			d.handler.OnDone(rec.SessionID)
		}
	}
	return nil
}
