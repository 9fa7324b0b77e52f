package casestudy

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/casestudy-backend/internal/domain"
	"github.com/yungbote/casestudy-backend/internal/platform/dbctx"
	"github.com/yungbote/casestudy-backend/internal/platform/logger"
)

type TranscriptChunkRepo interface {
	Create(dbc dbctx.Context, chunk *types.TranscriptChunk) (*types.TranscriptChunk, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.TranscriptChunk, error)
	GetMaxVersion(dbc dbctx.Context, sessionID uuid.UUID) (int64, error)
	// ListDesc returns chunks with version > sinceVersion, newest first.
	ListDesc(dbc dbctx.Context, sessionID uuid.UUID, sinceVersion int64, limit int) ([]*types.TranscriptChunk, error)
	ListAsc(dbc dbctx.Context, sessionID uuid.UUID) ([]*types.TranscriptChunk, error)
	Latest(dbc dbctx.Context, sessionID uuid.UUID) (*types.TranscriptChunk, error)
}

type transcriptChunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTranscriptChunkRepo(db *gorm.DB, log *logger.Logger) TranscriptChunkRepo {
	return &transcriptChunkRepo{db: db, log: log.With("repo", "TranscriptChunkRepo")}
}

func (r *transcriptChunkRepo) Create(dbc dbctx.Context, chunk *types.TranscriptChunk) (*types.TranscriptChunk, error) {
	if chunk == nil {
		return nil, fmt.Errorf("missing chunk")
	}
	if chunk.SessionID == uuid.Nil {
		return nil, fmt.Errorf("missing session_id")
	}
	if chunk.ID == uuid.Nil {
		chunk.ID = uuid.New()
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if err := txx.WithContext(dbc.Ctx).Create(chunk).Error; err != nil {
		return nil, err
	}
	return chunk, nil
}

func (r *transcriptChunkRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.TranscriptChunk, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing chunk_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.TranscriptChunk
	err := txx.WithContext(dbc.Ctx).Where("id = ?", id).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *transcriptChunkRepo) GetMaxVersion(dbc dbctx.Context, sessionID uuid.UUID) (int64, error) {
	if sessionID == uuid.Nil {
		return 0, fmt.Errorf("missing session_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var maxVersion int64
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.TranscriptChunk{}).
		Select("COALESCE(MAX(version), 0)").
		Where("session_id = ?", sessionID).
		Scan(&maxVersion).Error; err != nil {
		return 0, err
	}
	return maxVersion, nil
}

func (r *transcriptChunkRepo) ListDesc(dbc dbctx.Context, sessionID uuid.UUID, sinceVersion int64, limit int) ([]*types.TranscriptChunk, error) {
	if sessionID == uuid.Nil {
		return nil, fmt.Errorf("missing session_id")
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	q := txx.WithContext(dbc.Ctx).
		Model(&types.TranscriptChunk{}).
		Where("session_id = ?", sessionID)
	if sinceVersion > 0 {
		q = q.Where("version > ?", sinceVersion)
	}
	var out []*types.TranscriptChunk
	if err := q.Order("version DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *transcriptChunkRepo) ListAsc(dbc dbctx.Context, sessionID uuid.UUID) ([]*types.TranscriptChunk, error) {
	if sessionID == uuid.Nil {
		return nil, fmt.Errorf("missing session_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.TranscriptChunk
	if err := txx.WithContext(dbc.Ctx).
		Where("session_id = ?", sessionID).
		Order("version ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Latest returns nil, nil when the session has no chunks.
func (r *transcriptChunkRepo) Latest(dbc dbctx.Context, sessionID uuid.UUID) (*types.TranscriptChunk, error) {
	rows, err := r.ListDesc(dbc, sessionID, 0, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}
