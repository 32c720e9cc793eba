package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"polytrader/pkg/types"
)

// Session is a paper-trading session's final state.
type Session struct {
	SavedAt int64           `json:"saved_at"`
	Capital decimal.Decimal `json:"capital"`
	Equity  decimal.Decimal `json:"equity"`
	Trades  []types.Trade   `json:"trades"`
}

// SessionStore persists paper sessions as JSON files. Writes go to a .tmp
// file first and rename over the target, so a crash mid-save never leaves a
// corrupt session behind.
type SessionStore struct {
	dir string
	mu  sync.Mutex
}

// OpenSessions creates a session store backed by dir.
func OpenSessions(dir string) (*SessionStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &SessionStore{dir: dir}, nil
}

// SaveSession atomically writes the session file. A zero ts is replaced with
// the current time.
func (s *SessionStore) SaveSession(ts int64, capital, equity decimal.Decimal, trades []types.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ts == 0 {
		ts = time.Now().Unix()
	}
	data, err := json.MarshalIndent(Session{
		SavedAt: ts,
		Capital: capital,
		Equity:  equity,
		Trades:  trades,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	path := filepath.Join(s.dir, "session.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadSession restores the last saved session. Returns nil, nil when none
// has been saved yet.
func (s *SessionStore) LoadSession() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, "session.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &sess, nil
}
