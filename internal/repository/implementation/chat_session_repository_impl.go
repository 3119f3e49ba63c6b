package implementation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pdfchat-be/internal/entity"
	"pdfchat-be/internal/mapper"
	"pdfchat-be/internal/model"
	"pdfchat-be/internal/repository/contract"
	"pdfchat-be/internal/repository/specification"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

type ChatSessionRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ChatMapper
}

func NewChatSessionRepository(db *gorm.DB) contract.ChatSessionRepository {
	return &ChatSessionRepositoryImpl{
		db:     db,
		mapper: mapper.NewChatMapper(),
	}
}

func (r *ChatSessionRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *ChatSessionRepositoryImpl) FindByFileHash(ctx context.Context, fileHash string) (*entity.ChatSession, error) {
	var m model.ChatSession
	if err := r.applySpecifications(r.db.WithContext(ctx), specification.ByFileHash{FileHash: fileHash}).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ChatSessionToEntity(&m), nil
}

// Create inserts a new session. The unique index on file_hash is the arbiter for concurrent creators.
func (r *ChatSessionRepositoryImpl) Create(ctx context.Context, session *entity.ChatSession) error {
	m := r.mapper.ChatSessionToModel(session)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		if isUniqueViolation(err) {
			return contract.ErrDuplicateSession
		}
		return err
	}
	*session = *r.mapper.ChatSessionToEntity(m)
	return nil
}

func (r *ChatSessionRepositoryImpl) ReplaceContext(ctx context.Context, fileHash string, units []entity.ContextUnit) error {
	pages := datatypes.NewJSONSlice(r.mapper.ContextUnitsToModels(units))
	res := r.applySpecifications(r.db.WithContext(ctx).Model(&model.ChatSession{}), specification.ByFileHash{FileHash: fileHash}).
		Updates(map[string]interface{}{
			"pdf_context": pages,
			"updated_at":  time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return contract.ErrSessionNotFound
	}
	return nil
}

// AppendMessages concatenates onto the jsonb array in a single statement so concurrent
// turns on one document cannot overwrite each other's messages.
func (r *ChatSessionRepositoryImpl) AppendMessages(ctx context.Context, fileHash string, messages []entity.Message) error {
	if len(messages) == 0 {
		return nil
	}
	payload, err := json.Marshal(r.mapper.MessagesToModels(messages))
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}

	res := r.db.WithContext(ctx).Exec(
		`UPDATE chat_sessions SET chat_messages = chat_messages || ?::jsonb, updated_at = ? WHERE file_hash = ?`,
		string(payload), time.Now(), fileHash,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return contract.ErrSessionNotFound
	}
	return nil
}

func (r *ChatSessionRepositoryImpl) DeleteByFileHash(ctx context.Context, fileHash string) (int64, error) {
	res := r.applySpecifications(r.db.WithContext(ctx), specification.ByFileHash{FileHash: fileHash}).Delete(&model.ChatSession{})
	return res.RowsAffected, res.Error
}

func (r *ChatSessionRepositoryImpl) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.ChatSession{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
