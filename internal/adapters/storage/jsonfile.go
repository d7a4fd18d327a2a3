package storage

// jsonfile.go: backend por defecto: ficheros JSON en cache_dir.
//
//   - {strategy}-state.json:   state completo, se reescribe entero en cada Save.
//   - {strategy}-history.json: array JSON de trades, solo se añaden entradas.
//   - {strategy}.lock:         existe mientras un run está en curso.
//
// Todas las escrituras son atómicas (fichero temporal + rename), así que un
// proceso que muere a mitad de un Save deja el fichero anterior intacto.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/alejandrodnm/perpbot/internal/domain"
)

// JSONStore implementa ports.StateStore, ports.HistoryStore y ports.Locker
// sobre ficheros JSON.
type JSONStore struct {
	dir        string
	staleAfter time.Duration
	mu         sync.Mutex
}

// NewJSONStore crea el directorio si no existe. Los locks con más de
// staleAfter se consideran abandonados (0 = nunca).
func NewJSONStore(dir string, staleAfter time.Duration) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage.NewJSONStore: mkdir %q: %w", dir, err)
	}
	return &JSONStore{dir: dir, staleAfter: staleAfter}, nil
}

// StatePath devuelve la ruta del fichero de state de la estrategia.
func (s *JSONStore) StatePath(strategy string) string {
	return filepath.Join(s.dir, strategy+"-state.json")
}

// HistoryPath devuelve la ruta del histórico de la estrategia.
func (s *JSONStore) HistoryPath(strategy string) string {
	return filepath.Join(s.dir, strategy+"-history.json")
}

func (s *JSONStore) lockPath(strategy string) string {
	return filepath.Join(s.dir, strategy+".lock")
}

// Load lee el state. Si el fichero no existe devuelve un state vacío.
func (s *JSONStore) Load(_ context.Context, strategy string) (*domain.State, error) {
	if err := checkName(strategy); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st := domain.NewState()
	ok, err := readJSON(s.StatePath(strategy), st)
	if err != nil {
		return nil, fmt.Errorf("storage.Load: %w", err)
	}
	if ok {
		st.Normalize()
	}
	return st, nil
}

// Save reescribe el state de forma atómica.
func (s *JSONStore) Save(_ context.Context, strategy string, st *domain.State) error {
	if err := checkName(strategy); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeJSON(s.StatePath(strategy), st); err != nil {
		return fmt.Errorf("storage.Save: %w", err)
	}
	return nil
}

// Append añade un trade al histórico de su estrategia.
func (s *JSONStore) Append(_ context.Context, rec domain.TradeRecord) error {
	if err := checkName(rec.Strategy); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.HistoryPath(rec.Strategy)
	var history []domain.TradeRecord
	if _, err := readJSON(path, &history); err != nil {
		return fmt.Errorf("storage.Append: %w", err)
	}
	history = append(history, rec)
	if err := writeJSON(path, history); err != nil {
		return fmt.Errorf("storage.Append: %w", err)
	}
	return nil
}

// Recent devuelve los últimos limit trades de la estrategia. limit <= 0 devuelve todos.
func (s *JSONStore) Recent(_ context.Context, strategy string, limit int) ([]domain.TradeRecord, error) {
	if err := checkName(strategy); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var history []domain.TradeRecord
	if _, err := readJSON(s.HistoryPath(strategy), &history); err != nil {
		return nil, fmt.Errorf("storage.Recent: %w", err)
	}
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history, nil
}

// Lock crea {strategy}.lock en exclusiva. Si ya existe y es más viejo que
// staleAfter se rompe una vez; si no, devuelve domain.ErrLocked.
func (s *JSONStore) Lock(strategy string) (func() error, error) {
	if err := checkName(strategy); err != nil {
		return nil, err
	}
	path := s.lockPath(strategy)

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, werr := f.WriteString(strconv.Itoa(os.Getpid()) + " " + time.Now().UTC().Format(time.RFC3339) + "\n")
			if cerr := f.Close(); werr == nil {
				werr = cerr
			}
			if werr != nil {
				os.Remove(path)
				return nil, fmt.Errorf("storage.Lock %s: %w", strategy, werr)
			}
			return func() error {
				if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("storage.Unlock %s: %w", strategy, err)
				}
				return nil
			}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("storage.Lock %s: %w", strategy, err)
		}
		if attempt > 0 || !s.isStale(path) {
			break
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("storage.Lock %s: break stale lock: %w", strategy, err)
		}
	}
	return nil, fmt.Errorf("storage.Lock %s: %w", strategy, domain.ErrLocked)
}

// Close no hace nada: no hay recursos abiertos entre llamadas.
func (s *JSONStore) Close() error { return nil }

func (s *JSONStore) isStale(path string) bool {
	if s.staleAfter <= 0 {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) > s.staleAfter
}

// checkName evita que un nombre de estrategia escape de cache_dir.
func checkName(strategy string) error {
	if strategy == "" || strategy != filepath.Base(strategy) || strategy == "." || strategy == ".." {
		return fmt.Errorf("storage: invalid strategy name %q", strategy)
	}
	return nil
}

// readJSON decodifica path en v. Devuelve false sin error si el fichero no existe.
func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}

// writeJSON escribe v en path vía fichero temporal + rename.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", tmpName, err)
	}
	return nil
}
