package contract

import (
	"context"
	"errors"

	"pdfchat-be/internal/entity"
)

var (
	// ErrDuplicateSession is returned by Create when a session for the fingerprint already exists.
	ErrDuplicateSession = errors.New("chat session already exists for file hash")
	// ErrSessionNotFound is returned by mutations that matched no session.
	ErrSessionNotFound = errors.New("chat session not found")
)

type ChatSessionRepository interface {
	// FindByFileHash returns nil, nil when no session exists.
	FindByFileHash(ctx context.Context, fileHash string) (*entity.ChatSession, error)
	Create(ctx context.Context, session *entity.ChatSession) error
	ReplaceContext(ctx context.Context, fileHash string, units []entity.ContextUnit) error
	AppendMessages(ctx context.Context, fileHash string, messages []entity.Message) error
	DeleteByFileHash(ctx context.Context, fileHash string) (int64, error)
	Count(ctx context.Context) (int64, error)
}
