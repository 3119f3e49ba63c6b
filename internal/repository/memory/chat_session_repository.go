package memory

import (
	"context"
	"sync"
	"time"

	"pdfchat-be/internal/entity"
	"pdfchat-be/internal/repository/contract"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// ChatSessionRepository keeps sessions in process memory. Used when no database is configured
// and as the store behind service tests.
type ChatSessionRepository struct {
	cache *cache.Cache
	// Serializes read-modify-write mutations; go-cache has no compare-and-swap.
	mu sync.Mutex
}

func NewChatSessionRepository() *ChatSessionRepository {
	// Sessions never expire and no janitor goroutine is needed.
	c := cache.New(cache.NoExpiration, 0)
	return &ChatSessionRepository{
		cache: c,
	}
}

var _ contract.ChatSessionRepository = (*ChatSessionRepository)(nil)

func (r *ChatSessionRepository) FindByFileHash(ctx context.Context, fileHash string) (*entity.ChatSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if x, found := r.cache.Get(fileHash); found {
		return x.(*entity.ChatSession).Clone(), nil
	}
	return nil, nil
}

func (r *ChatSessionRepository) Create(ctx context.Context, session *entity.ChatSession) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := time.Now()
	stored := session.Clone()
	if stored.Id == uuid.Nil {
		stored.Id = uuid.New()
	}
	if stored.ContextUnits == nil {
		stored.ContextUnits = []entity.ContextUnit{}
	}
	stored.CreatedAt = now
	stored.UpdatedAt = now

	// Add fails when the key already exists, which plays the role of the unique index.
	if err := r.cache.Add(session.FileHash, stored, cache.NoExpiration); err != nil {
		return contract.ErrDuplicateSession
	}
	*session = *stored.Clone()
	return nil
}

func (r *ChatSessionRepository) ReplaceContext(ctx context.Context, fileHash string, units []entity.ContextUnit) error {
	return r.mutate(ctx, fileHash, func(s *entity.ChatSession) {
		s.ContextUnits = append([]entity.ContextUnit{}, units...)
	})
}

func (r *ChatSessionRepository) AppendMessages(ctx context.Context, fileHash string, messages []entity.Message) error {
	if len(messages) == 0 {
		return nil
	}
	return r.mutate(ctx, fileHash, func(s *entity.ChatSession) {
		incoming := (&entity.ChatSession{Messages: messages}).Clone().Messages
		s.Messages = append(s.Messages, incoming...)
	})
}

func (r *ChatSessionRepository) DeleteByFileHash(ctx context.Context, fileHash string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, found := r.cache.Get(fileHash); !found {
		return 0, nil
	}
	r.cache.Delete(fileHash)
	return 1, nil
}

func (r *ChatSessionRepository) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return int64(r.cache.ItemCount()), nil
}

func (r *ChatSessionRepository) mutate(ctx context.Context, fileHash string, fn func(s *entity.ChatSession)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	x, found := r.cache.Get(fileHash)
	if !found {
		return contract.ErrSessionNotFound
	}
	next := x.(*entity.ChatSession).Clone()
	fn(next)
	next.UpdatedAt = time.Now()
	r.cache.Set(fileHash, next, cache.NoExpiration)
	return nil
}
