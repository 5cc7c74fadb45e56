package leads

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// BotStore reads bot profiles.
type BotStore interface {
	GetBot(ctx context.Context, botID string) (*BotProfile, error)
}

// ChatLog stores session transcripts.
type ChatLog interface {
	// RecentMessages returns up to limit messages, newest first.
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]ChatMessage, error)
	InsertMessage(ctx context.Context, msg ChatMessage) error
}

// FactStore stores extracted facts with upsert semantics on the natural key.
type FactStore interface {
	ListFacts(ctx context.Context, sessionID string) ([]Fact, error)
	UpsertFacts(ctx context.Context, facts []Fact) error
}

// PresenceStore tracks which session of a conversation is online.
type PresenceStore interface {
	// MarkOnline marks p online and every other session sharing p.ChatID offline.
	MarkOnline(ctx context.Context, p SessionPresence) error
}

// AlertLedger remembers which sessions already produced a lead alert.
type AlertLedger interface {
	// ClaimAlert returns true when this call is the first claim for the session.
	ClaimAlert(ctx context.Context, sessionID string, score int) (bool, error)
	ReleaseAlert(ctx context.Context, sessionID string) error
}

// Store is the full record-store surface the turn pipeline needs.
type Store interface {
	BotStore
	ChatLog
	FactStore
	PresenceStore
	AlertLedger
}

// MemoryStore is an in-process Store used by tests and local runs without a database.
type MemoryStore struct {
	mu       sync.RWMutex
	bots     map[string]*BotProfile
	messages map[string][]ChatMessage
	facts    map[string]Fact
	order    []string
	presence map[string]SessionPresence
	alerts   map[string]int
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bots:     make(map[string]*BotProfile),
		messages: make(map[string][]ChatMessage),
		facts:    make(map[string]Fact),
		presence: make(map[string]SessionPresence),
		alerts:   make(map[string]int),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// PutBot registers a bot profile.
func (s *MemoryStore) PutBot(bot BotProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := bot
	s.bots[bot.ID] = &b
}

func (s *MemoryStore) GetBot(ctx context.Context, botID string) (*BotProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bot, ok := s.bots[botID]
	if !ok {
		return nil, ErrBotNotFound
	}
	b := *bot
	return &b, nil
}

func (s *MemoryStore) RecentMessages(ctx context.Context, sessionID string, limit int) ([]ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.messages[sessionID]
	out := make([]ChatMessage, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) InsertMessage(ctx context.Context, msg ChatMessage) error {
	if msg.SessionID == "" {
		return ErrMissingSession
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], msg)
	return nil
}

func (s *MemoryStore) ListFacts(ctx context.Context, sessionID string) ([]Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Fact, 0)
	for _, key := range s.order {
		if f := s.facts[key]; f.SessionID == sessionID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *MemoryStore) UpsertFacts(ctx context.Context, facts []Fact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range facts {
		if f.SessionID == "" {
			return ErrMissingSession
		}
		key := f.Key()
		if existing, ok := s.facts[key]; ok {
			f.CreatedAt = existing.CreatedAt
			s.facts[key] = f
			continue
		}
		if f.CreatedAt.IsZero() {
			f.CreatedAt = s.now()
		}
		s.facts[key] = f
		s.order = append(s.order, key)
	}
	return nil
}

func (s *MemoryStore) MarkOnline(ctx context.Context, p SessionPresence) error {
	if p.SessionID == "" {
		return ErrMissingSession
	}
	if p.ChatID == "" {
		return ErrMissingChat
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, other := range s.presence {
		if other.ChatID == p.ChatID && id != p.SessionID {
			other.IsOnline = false
			s.presence[id] = other
		}
	}
	if p.LastSeen.IsZero() {
		p.LastSeen = s.now()
	}
	p.IsOnline = true
	s.presence[p.SessionID] = p
	return nil
}

// Presence returns every presence row for a chat, sorted by session id.
func (s *MemoryStore) Presence(chatID string) []SessionPresence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SessionPresence, 0)
	for _, p := range s.presence {
		if p.ChatID == chatID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

func (s *MemoryStore) ClaimAlert(ctx context.Context, sessionID string, score int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerts[sessionID]; ok {
		return false, nil
	}
	s.alerts[sessionID] = score
	return true, nil
}

func (s *MemoryStore) ReleaseAlert(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.alerts, sessionID)
	return nil
}
