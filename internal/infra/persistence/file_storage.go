package persistence

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spounge-ai/medvault/internal/constants"
)

const (
	fileSuffix = ".rec"
	// maxKeyLen bounds the key header so a corrupt file cannot force a large read.
	maxKeyLen = 4096
)

// FileStorage is the always-available Tier A store: one file per key under a
// private directory. Writes go through a temp file and a rename so a crash never
// leaves a half-written value behind.
//
// File names are the hex SHA-256 of the key, so any key fits the file system's
// name limit. Each file starts with the uvarint length of the key and the key
// itself, followed by the value.
type FileStorage struct {
	dir    string
	mu     sync.RWMutex
	logger *slog.Logger
}

func NewFileStorage(dir string, logger *slog.Logger) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FileStorage{dir: dir, logger: logger}, nil
}

func (s *FileStorage) Name() string { return constants.BackendFile }

func (s *FileStorage) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+fileSuffix)
}

func encodeFile(key string, value []byte) []byte {
	buf := make([]byte, 0, binary.MaxVarintLen64+len(key)+len(value))
	buf = binary.AppendUvarint(buf, uint64(len(key)))
	buf = append(buf, key...)
	return append(buf, value...)
}

// readKey reads the key header from r, leaving r positioned at the value.
func readKey(r *bufio.Reader) (string, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return "", err
	}
	if n > maxKeyLen {
		return "", fmt.Errorf("key header of %d bytes exceeds %d", n, maxKeyLen)
	}
	key := make([]byte, n)
	if _, err := io.ReadFull(r, key); err != nil {
		return "", err
	}
	return string(key), nil
}

func (s *FileStorage) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(s.Name(), key)
		}
		return nil, fmt.Errorf("failed to read %q: %w", key, err)
	}
	r := bufio.NewReader(bytes.NewReader(data))
	stored, err := readKey(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %q: %w", key, err)
	}
	if stored != key {
		return nil, notFound(s.Name(), key)
	}
	value, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", key, err)
	}
	return value, nil
}

func (s *FileStorage) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		if rmErr := os.Remove(tmpName); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			s.logger.Warn("failed to remove temp file", "path", tmpName, "error", rmErr)
		}
	}

	if _, err := tmp.Write(encodeFile(key, value)); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close %q: %w", key, err)
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		cleanup()
		return fmt.Errorf("failed to commit %q: %w", key, err)
	}
	return nil
}

func (s *FileStorage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}

func (s *FileStorage) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list storage directory: %w", err)
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		key, err := s.keyOf(filepath.Join(s.dir, name))
		if err != nil {
			s.logger.Warn("skipping unreadable storage file", "file", name, "error", err)
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *FileStorage) keyOf(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	key, err := readKey(bufio.NewReader(f))
	if err != nil {
		return "", err
	}
	if s.path(key) != path {
		return "", fmt.Errorf("file name does not match its key")
	}
	return key, nil
}
