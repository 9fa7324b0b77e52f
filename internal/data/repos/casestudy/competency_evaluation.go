package casestudy

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/casestudy-backend/internal/domain"
	"github.com/yungbote/casestudy-backend/internal/platform/dbctx"
	"github.com/yungbote/casestudy-backend/internal/platform/logger"
)

type EvaluationFilter struct {
	// Since keeps rows created strictly after the timestamp.
	Since         *time.Time
	ParticipantID *uuid.UUID
}

type CompetencyEvaluationRepo interface {
	Create(dbc dbctx.Context, row *types.CompetencyEvaluation) (*types.CompetencyEvaluation, error)
	// ListBySession orders rows by chunk version, then creation time.
	ListBySession(dbc dbctx.Context, sessionID uuid.UUID, filter EvaluationFilter) ([]*types.CompetencyEvaluation, error)
}

type competencyEvaluationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCompetencyEvaluationRepo(db *gorm.DB, log *logger.Logger) CompetencyEvaluationRepo {
	return &competencyEvaluationRepo{db: db, log: log.With("repo", "CompetencyEvaluationRepo")}
}

func (r *competencyEvaluationRepo) Create(dbc dbctx.Context, row *types.CompetencyEvaluation) (*types.CompetencyEvaluation, error) {
	if row == nil {
		return nil, fmt.Errorf("missing evaluation")
	}
	if row.SessionID == uuid.Nil || row.TranscriptChunkID == uuid.Nil || row.ParticipantID == uuid.Nil {
		return nil, fmt.Errorf("evaluation requires session, chunk and participant")
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if err := txx.WithContext(dbc.Ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *competencyEvaluationRepo) ListBySession(dbc dbctx.Context, sessionID uuid.UUID, filter EvaluationFilter) ([]*types.CompetencyEvaluation, error) {
	if sessionID == uuid.Nil {
		return nil, fmt.Errorf("missing session_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	q := txx.WithContext(dbc.Ctx).
		Model(&types.CompetencyEvaluation{}).
		Where("session_id = ?", sessionID)
	if filter.Since != nil && !filter.Since.IsZero() {
		q = q.Where("created_at > ?", *filter.Since)
	}
	if filter.ParticipantID != nil && *filter.ParticipantID != uuid.Nil {
		q = q.Where("participant_id = ?", *filter.ParticipantID)
	}
	var out []*types.CompetencyEvaluation
	if err := q.Order("chunk_version ASC").Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
