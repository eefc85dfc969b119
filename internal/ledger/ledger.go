// Package ledger keeps an append-only per-wallet record of deposits and
// withdrawals and derives realized yield from it.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/gofrs/flock"
	"github.com/google/uuid"

	clierr "github.com/yieldline/yieldctl/internal/errors"
)

type Action string

const (
	ActionDeposit  Action = "deposit"
	ActionWithdraw Action = "withdraw"
)

// Entry is one recorded transaction. Identity is a random id, not a
// timestamp composite, so two deposits in the same millisecond never collide.
type Entry struct {
	ID          string `json:"id"`
	Timestamp   string `json:"timestamp"`
	Action      Action `json:"action"`
	ProtocolID  string `json:"protocol_id"`
	Chain       string `json:"chain"`
	AssetSymbol string `json:"asset_symbol"`
	HumanAmount string `json:"human_amount"`
	RawAmount   string `json:"raw_amount"`
	TxHash      string `json:"tx_hash,omitempty"`
}

type document struct {
	Wallet  string  `json:"wallet"`
	Entries []Entry `json:"entries"`
}

// Store holds one JSON document per wallet address, loaded fully on first
// access and rewritten fully on every append. The in-memory cache is keyed by
// wallet address so interleaved wallets never see each other's entries.
type Store struct {
	dir   string
	lock  *flock.Flock
	cache *ristretto.Cache
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1 << 24,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("init ledger cache: %w", err)
	}
	return &Store{
		dir:   dir,
		lock:  flock.New(filepath.Join(dir, "ledger.lock")),
		cache: cache,
	}, nil
}

func (s *Store) Close() {
	if s != nil && s.cache != nil {
		s.cache.Close()
	}
}

// Load returns all entries for a wallet, oldest first.
func (s *Store) Load(wallet string) ([]Entry, error) {
	key := normalizeWallet(wallet)
	if key == "" {
		return nil, clierr.New(clierr.CodeUsage, "wallet address is required")
	}
	if cached, ok := s.cache.Get(key); ok {
		if entries, ok := cached.([]Entry); ok {
			return entries, nil
		}
	}
	entries, err := s.readDocument(key)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, entries, int64(len(entries)+1))
	s.cache.Wait()
	return entries, nil
}

// Record assigns an id and UTC timestamp, appends the entry, and rewrites the
// wallet document atomically.
func (s *Store) Record(wallet string, e Entry) (Entry, error) {
	key := normalizeWallet(wallet)
	if key == "" {
		return Entry{}, clierr.New(clierr.CodeUsage, "wallet address is required")
	}
	if strings.TrimSpace(e.RawAmount) == "" {
		return Entry{}, clierr.New(clierr.CodeUsage, "ledger entry requires a raw amount")
	}
	e.ID = uuid.NewString()
	e.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	e.AssetSymbol = strings.ToUpper(strings.TrimSpace(e.AssetSymbol))
	e.Chain = strings.ToLower(strings.TrimSpace(e.Chain))
	e.ProtocolID = strings.ToLower(strings.TrimSpace(e.ProtocolID))

	if err := s.withLock(func() error {
		entries, err := s.readDocument(key)
		if err != nil {
			return err
		}
		entries = append(entries, e)
		if err := s.writeDocument(key, entries); err != nil {
			return err
		}
		s.cache.Set(key, entries, int64(len(entries)+1))
		s.cache.Wait()
		return nil
	}); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Filter narrows entries to one (asset, chain, protocol) position. Empty
// selectors match everything.
func Filter(entries []Entry, asset, chainID, protocolID string) []Entry {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	chainID = strings.ToLower(strings.TrimSpace(chainID))
	protocolID = strings.ToLower(strings.TrimSpace(protocolID))
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if asset != "" && e.AssetSymbol != asset {
			continue
		}
		if chainID != "" && e.Chain != chainID {
			continue
		}
		if protocolID != "" && e.ProtocolID != protocolID {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (s *Store) withLock(fn func() error) error {
	locked, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock ledger: %w", err)
	}
	if !locked {
		deadline := time.Now().Add(5 * time.Second)
		for !locked && time.Now().Before(deadline) {
			time.Sleep(50 * time.Millisecond)
			locked, err = s.lock.TryLock()
			if err != nil {
				return fmt.Errorf("lock ledger: %w", err)
			}
		}
		if !locked {
			return fmt.Errorf("lock ledger: timeout acquiring lock")
		}
	}
	defer func() { _ = s.lock.Unlock() }()
	return fn()
}

func (s *Store) readDocument(key string) ([]Entry, error) {
	path := s.documentPath(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("read ledger document: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode ledger document: %w", err)
	}
	return doc.Entries, nil
}

func (s *Store) writeDocument(key string, entries []Entry) error {
	doc := document{Wallet: key, Entries: entries}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger document: %w", err)
	}
	path := s.documentPath(key)
	tmp, err := os.CreateTemp(s.dir, "ledger-*.tmp")
	if err != nil {
		return fmt.Errorf("create ledger temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write ledger temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close ledger temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace ledger document: %w", err)
	}
	return nil
}

func (s *Store) documentPath(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func normalizeWallet(wallet string) string {
	return strings.ToLower(strings.TrimSpace(wallet))
}
