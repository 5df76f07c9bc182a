package persistence

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BaSui01/tenex/team"
	"github.com/BaSui01/tenex/types"
)

// FileStore 文件实现：teams/<hash>.json 保存团队，messages/<hash>.jsonl 逐行追加消息。
// 会话键经 sha256 编码为文件名。
type FileStore struct {
	baseDir string

	mu     sync.Mutex
	closed bool
}

// NewFileStore 创建文件存储
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("file store: %w: empty base dir", ErrInvalidInput)
	}
	for _, sub := range []string{"teams", "messages"} {
		if err := os.MkdirAll(filepath.Join(baseDir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	return &FileStore{baseDir: baseDir}, nil
}

func fileName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func (s *FileStore) teamPath(key string) string {
	return filepath.Join(s.baseDir, "teams", fileName(key)+".json")
}

func (s *FileStore) messagesPath(key string) string {
	return filepath.Join(s.baseDir, "messages", fileName(key)+".jsonl")
}

func (s *FileStore) SaveTeam(ctx context.Context, key string, t *team.Team) error {
	if err := validateKey(key); err != nil || t == nil {
		return ErrInvalidInput
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal team: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	// 先写临时文件再 rename，保证原子替换
	path := s.teamPath(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *FileStore) GetTeam(ctx context.Context, key string) (*team.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	data, err := os.ReadFile(s.teamPath(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var t team.Team
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to decode team: %w", err)
	}
	return &t, nil
}

func (s *FileStore) AppendMessage(ctx context.Context, key string, msg types.ConversationMessage) error {
	if err := validateKey(key); err != nil {
		return err
	}
	line, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	f, err := os.OpenFile(s.messagesPath(key), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (s *FileStore) GetMessages(ctx context.Context, key string) ([]types.ConversationMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	data, err := os.ReadFile(s.messagesPath(key))
	if errors.Is(err, os.ErrNotExist) {
		return []types.ConversationMessage{}, nil
	}
	if err != nil {
		return nil, err
	}

	msgs := []types.ConversationMessage{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64<<10), 8<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var m types.ConversationMessage
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, fmt.Errorf("failed to decode message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, scanner.Err()
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *FileStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	_, err := os.Stat(s.baseDir)
	return err
}

var _ ConversationStore = (*FileStore)(nil)
