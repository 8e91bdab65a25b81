// internal/state/turnlog.go
package state

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/user/gatewaychat/internal/types"
)

// TurnRecord is the local summary of one streamed turn.
type TurnRecord struct {
	Seq         int64           `json:"seq"`
	TurnID      types.TurnID    `json:"turn_id"`
	SessionID   types.SessionID `json:"session_id"`
	Target      types.Target    `json:"target"`
	Status      string          `json:"status"`
	Chunks      int             `json:"chunks"`
	BlockReason string          `json:"block_reason,omitempty"`
	Error       string          `json:"error,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	DurationMS  int64           `json:"duration_ms"`
}

// unsessioned holds turns that never resolved a session, such as a first
// message that failed.
const unsessioned = "_unsessioned"

// TurnLog is a JSONL-backed append-only turn log.
// Records are stored per-session in turns/<sessionID>.jsonl.
type TurnLog struct {
	root  string
	mu    sync.Mutex
	locks map[types.SessionID]*sync.Mutex
}

// NewTurnLog creates a turn log rooted at the given directory.
func NewTurnLog(root string) *TurnLog {
	return &TurnLog{
		root:  root,
		locks: make(map[types.SessionID]*sync.Mutex),
	}
}

// getLock returns the per-session mutex, creating one if it doesn't exist.
func (l *TurnLog) getLock(id types.SessionID) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lock, ok := l.locks[id]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	l.locks[id] = lock
	return lock
}

// ErrInvalidSessionID rejects ids that cannot be used as a file name.
var ErrInvalidSessionID = errors.New("invalid session id")

func (l *TurnLog) path(id types.SessionID) (string, error) {
	name := string(id)
	if name == "" {
		name = unsessioned
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`+"\x00") {
		return "", fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}
	return filepath.Join(l.root, "turns", name+".jsonl"), nil
}

// count reads the log file and counts lines. Caller must hold the session lock.
func (l *TurnLog) count(id types.SessionID) (int64, error) {
	path, err := l.path(id)
	if err != nil {
		return 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open turn log: %w", err)
	}
	defer f.Close()

	var count int64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		count++
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("scan turn log: %w", err)
	}
	return count, nil
}

// Append adds a record to its session's log with the next sequence number.
func (l *TurnLog) Append(rec *TurnRecord) error {
	path, err := l.path(rec.SessionID)
	if err != nil {
		return err
	}
	lock := l.getLock(rec.SessionID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Join(l.root, "turns"), 0o755); err != nil {
		return fmt.Errorf("create turns dir: %w", err)
	}

	existing, err := l.count(rec.SessionID)
	if err != nil {
		return err
	}
	rec.Seq = existing + 1

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal turn: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open turn log: %w", err)
	}
	defer f.Close()

	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write turn: %w", err)
	}
	return nil
}

// Tail returns the last limit records for the session. A limit of zero or
// less returns all of them.
func (l *TurnLog) Tail(id types.SessionID, limit int) ([]*TurnRecord, error) {
	path, err := l.path(id)
	if err != nil {
		return nil, err
	}
	lock := l.getLock(id)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open turn log: %w", err)
	}
	defer f.Close()

	var records []*TurnRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec TurnRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal turn: %w", err)
		}
		records = append(records, &rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan turn log: %w", err)
	}

	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records, nil
}

// Count returns the number of records for the session.
func (l *TurnLog) Count(id types.SessionID) (int64, error) {
	lock := l.getLock(id)
	lock.Lock()
	defer lock.Unlock()
	return l.count(id)
}
