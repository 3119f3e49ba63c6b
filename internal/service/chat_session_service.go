package service

import (
	"context"
	"errors"
	"fmt"

	"pdfchat-be/internal/entity"
	"pdfchat-be/internal/pkg/apperror"
	"pdfchat-be/internal/pkg/logger"
	"pdfchat-be/internal/repository/contract"
	"pdfchat-be/pkg/events"

	"golang.org/x/sync/singleflight"
)

const (
	MsgFileHashRequired    = "File hash is required"
	MsgChatSessionNotFound = "Chat session not found"
)

// IChatSessionService owns the one-session-per-document invariant and the session's message log.
type IChatSessionService interface {
	// GetByFingerprint returns nil, nil when no session exists.
	GetByFingerprint(ctx context.Context, fileHash string) (*entity.ChatSession, error)
	GetOrCreate(ctx context.Context, fileHash string) (*entity.ChatSession, error)
	// ReplaceContext validates and summarizes units before touching storage, so a failure
	// leaves the previous context in place.
	ReplaceContext(ctx context.Context, fileHash string, units []entity.ContextUnit) error
	Append(ctx context.Context, fileHash string, msg entity.Message) error
	AppendMessages(ctx context.Context, fileHash string, msgs ...entity.Message) error
	// Delete is idempotent.
	Delete(ctx context.Context, fileHash string) error
}

type chatSessionService struct {
	repo      contract.ChatSessionRepository
	enricher  IContextEnricher
	publisher IPublisherService
	logger    logger.ILogger
	creates   singleflight.Group
}

func NewChatSessionService(
	repo contract.ChatSessionRepository,
	enricher IContextEnricher,
	publisher IPublisherService,
	log logger.ILogger,
) IChatSessionService {
	return &chatSessionService{
		repo:      repo,
		enricher:  enricher,
		publisher: publisher,
		logger:    log,
	}
}

func (s *chatSessionService) GetByFingerprint(ctx context.Context, fileHash string) (*entity.ChatSession, error) {
	if fileHash == "" {
		return nil, apperror.Validation(MsgFileHashRequired)
	}
	return s.repo.FindByFileHash(ctx, fileHash)
}

func (s *chatSessionService) GetOrCreate(ctx context.Context, fileHash string) (*entity.ChatSession, error) {
	if fileHash == "" {
		return nil, apperror.Validation(MsgFileHashRequired)
	}

	// Concurrent callers in this process share one lookup/insert; the unique index covers other instances.
	v, err, _ := s.creates.Do(fileHash, func() (interface{}, error) {
		return s.getOrCreate(ctx, fileHash)
	})
	if err != nil {
		return nil, err
	}
	return v.(*entity.ChatSession).Clone(), nil
}

func (s *chatSessionService) getOrCreate(ctx context.Context, fileHash string) (*entity.ChatSession, error) {
	existing, err := s.repo.FindByFileHash(ctx, fileHash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	session := &entity.ChatSession{
		FileHash:     fileHash,
		ContextUnits: []entity.ContextUnit{},
		Messages:     []entity.Message{},
	}
	err = s.repo.Create(ctx, session)
	if errors.Is(err, contract.ErrDuplicateSession) {
		// Lost the race to another creator; theirs is the session.
		existing, err = s.repo.FindByFileHash(ctx, fileHash)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("session %s vanished after duplicate insert", fileHash)
		}
		return existing, nil
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("ChatSessionService", "Chat session created", map[string]interface{}{
		"file_hash": fileHash,
	})
	s.publish(ctx, events.NewSessionCreated(fileHash))
	return session, nil
}

func (s *chatSessionService) ReplaceContext(ctx context.Context, fileHash string, units []entity.ContextUnit) error {
	if fileHash == "" {
		return apperror.Validation(MsgFileHashRequired)
	}
	if err := ValidateContextUnits(units); err != nil {
		return err
	}

	enriched, err := s.enricher.EnsureSummaries(ctx, units)
	if err != nil {
		s.logger.Error("ChatSessionService", "Context enrichment failed", map[string]interface{}{
			"file_hash": fileHash,
			"error":     err,
		})
		return err
	}

	if _, err := s.GetOrCreate(ctx, fileHash); err != nil {
		return err
	}
	if err := s.repo.ReplaceContext(ctx, fileHash, enriched); err != nil {
		return err
	}

	s.publish(ctx, events.NewSessionContextReplaced(fileHash, len(enriched)))
	return nil
}

func (s *chatSessionService) Append(ctx context.Context, fileHash string, msg entity.Message) error {
	return s.AppendMessages(ctx, fileHash, msg)
}

func (s *chatSessionService) AppendMessages(ctx context.Context, fileHash string, msgs ...entity.Message) error {
	if fileHash == "" {
		return apperror.Validation(MsgFileHashRequired)
	}
	for _, m := range msgs {
		if !m.Role.Valid() {
			return apperror.Validation(fmt.Sprintf("invalid message role %q", m.Role))
		}
	}
	if len(msgs) == 0 {
		return nil
	}

	err := s.repo.AppendMessages(ctx, fileHash, msgs)
	if !errors.Is(err, contract.ErrSessionNotFound) {
		return err
	}

	// First write for this document: create the session lazily and retry once.
	if _, err := s.GetOrCreate(ctx, fileHash); err != nil {
		return err
	}
	return s.repo.AppendMessages(ctx, fileHash, msgs)
}

func (s *chatSessionService) Delete(ctx context.Context, fileHash string) error {
	if fileHash == "" {
		return apperror.Validation(MsgFileHashRequired)
	}

	n, err := s.repo.DeleteByFileHash(ctx, fileHash)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info("ChatSessionService", "Chat session deleted", map[string]interface{}{
			"file_hash": fileHash,
		})
		s.publish(ctx, events.NewSessionDeleted(fileHash))
	}
	return nil
}

func (s *chatSessionService) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("ChatSessionService", "Failed to publish domain event", map[string]interface{}{
			"type":  event.EventType(),
			"error": err.Error(),
		})
	}
}
