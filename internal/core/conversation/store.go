package conversation

import (
	"context"
	"sync"
)

// DefaultConversationID は会話IDが指定されなかった場合に使用されるID
const DefaultConversationID = "default"

// Sender は会話エントリの発話者種別
type Sender string

const (
	// SenderHuman はユーザーの発話
	SenderHuman Sender = "HUMAN"
	// SenderAI はモデルの応答
	SenderAI Sender = "AI"
	// SenderSystem はシステムが挿入した補足情報
	SenderSystem Sender = "SYSTEM"
)

// Entry は会話履歴の1エントリを表す。追記後は変更されない
type Entry struct {
	Message string
	Sender  Sender
}

// Store は会話IDごとの履歴を保持する抽象
// 履歴の保存先（メモリ/外部ストア）は実装側の選択とする
type Store interface {
	// Get は指定された会話IDの履歴を追記順で返す
	Get(ctx context.Context, conversationID string) ([]Entry, error)
	// Append は指定された会話IDの履歴末尾にエントリを追加する
	Append(ctx context.Context, conversationID string, entries ...Entry) error
	// Clear は指定された会話IDの履歴を破棄する
	Clear(ctx context.Context, conversationID string) error
}

// InMemoryStore はプロセス内メモリに履歴を保持するStore実装
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Entry
}

// NewInMemoryStore は新しいInMemoryStoreを作成する
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string][]Entry),
	}
}

func (s *InMemoryStore) Get(ctx context.Context, conversationID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.sessions[conversationID]
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out, nil
}

func (s *InMemoryStore) Append(ctx context.Context, conversationID string, entries ...Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[conversationID] = append(s.sessions[conversationID], entries...)
	return nil
}

func (s *InMemoryStore) Clear(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, conversationID)
	return nil
}

var _ Store = (*InMemoryStore)(nil)
