// Package snapshot persists rendered reports as timestamped text objects and
// answers the questions the notification decision needs: what exists, and
// did the latest content change.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/meizi0715/bdt-v1.5/internal/report"
	"github.com/meizi0715/bdt-v1.5/internal/storage"
)

// DefaultKeep is the retention count.
const DefaultKeep = 6

const (
	nameLayout = "200601021504"
	nameSuffix = ".txt"
)

// ErrNotFound is returned when a named snapshot does not exist.
var ErrNotFound = storage.ErrNotFound

var (
	namePattern = regexp.MustCompile(`^\d{12}\.txt$`)
	kindPattern = regexp.MustCompile(`【([A-Z])\..+?】`)
)

// Backend is the object store snapshots are written to.
type Backend interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, name string) error
}

// Hasher produces a content digest.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Info describes one stored snapshot.
type Info struct {
	Name   string
	Size   int
	Digest string
}

// Store implements save, list, diff and prune over a Backend.
type Store struct {
	backend Backend
	hasher  Hasher
	logger  *zap.Logger
}

// New wires a Store.
func New(backend Backend, hasher Hasher, logger *zap.Logger) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("snapshot backend is required")
	}
	if hasher == nil {
		return nil, fmt.Errorf("snapshot hasher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{backend: backend, hasher: hasher, logger: logger}, nil
}

// Name derives the object name for now, floored to ten minutes.
func Name(now time.Time) string {
	y, mo, d := now.Date()
	floored := time.Date(y, mo, d, now.Hour(), now.Minute()/10*10, 0, 0, now.Location())
	return floored.Format(nameLayout) + nameSuffix
}

// Normalize collapses a header's classification marker to its letter:
// "【A.第一体育館】" becomes "【A.】".
func Normalize(line string) string {
	return kindPattern.ReplaceAllString(line, "【$1.】")
}

// Save normalizes lines, renders them and writes the result under the name
// derived from now. It returns the name written.
func (s *Store) Save(ctx context.Context, now time.Time, lines []string) (string, error) {
	normalized := make([]string, len(lines))
	for i, line := range lines {
		normalized[i] = Normalize(line)
	}
	name := Name(now)
	if err := s.backend.Put(ctx, name, report.Text(normalized)); err != nil {
		return "", fmt.Errorf("save snapshot %s: %w", name, err)
	}
	s.logger.Info("snapshot saved", zap.String("snapshot", name), zap.Int("lines", len(lines)))
	return name, nil
}

// List returns snapshot names in ascending, and therefore chronological,
// order. Objects not matching the naming scheme are ignored.
func (s *Store) List(ctx context.Context) ([]string, error) {
	names, err := s.backend.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		if namePattern.MatchString(name) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Read returns the stored bytes of one snapshot.
func (s *Store) Read(ctx context.Context, name string) ([]byte, error) {
	data, err := s.backend.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", name, err)
	}
	return data, nil
}

// Diff reports whether snapshots a and b differ in content.
func (s *Store) Diff(ctx context.Context, a, b string) (bool, error) {
	da, err := s.digest(ctx, a)
	if err != nil {
		return false, err
	}
	db, err := s.digest(ctx, b)
	if err != nil {
		return false, err
	}
	return da != db, nil
}

// Prune deletes everything but the newest keep snapshots. Individual delete
// failures are logged and skipped. It returns the number deleted.
func (s *Store) Prune(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		return 0, fmt.Errorf("keep must be non-negative, got %d", keep)
	}
	names, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(names) <= keep {
		return 0, nil
	}
	deleted := 0
	for _, name := range names[:len(names)-keep] {
		if err := s.backend.Delete(ctx, name); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			s.logger.Warn("snapshot delete failed", zap.String("snapshot", name), zap.Error(err))
			continue
		}
		deleted++
		s.logger.Info("snapshot deleted", zap.String("snapshot", name))
	}
	return deleted, nil
}

// Describe lists every snapshot with its size and digest.
func (s *Store) Describe(ctx context.Context) ([]Info, error) {
	names, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]Info, 0, len(names))
	for _, name := range names {
		data, err := s.Read(ctx, name)
		if err != nil {
			return nil, err
		}
		digest, err := s.hasher.Hash(data)
		if err != nil {
			return nil, fmt.Errorf("hash snapshot %s: %w", name, err)
		}
		infos = append(infos, Info{Name: name, Size: len(data), Digest: digest})
	}
	return infos, nil
}

func (s *Store) digest(ctx context.Context, name string) (string, error) {
	data, err := s.Read(ctx, name)
	if err != nil {
		return "", err
	}
	digest, err := s.hasher.Hash(data)
	if err != nil {
		return "", fmt.Errorf("hash snapshot %s: %w", name, err)
	}
	return digest, nil
}
