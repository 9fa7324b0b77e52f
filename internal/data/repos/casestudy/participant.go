package casestudy

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/casestudy-backend/internal/domain"
	"github.com/yungbote/casestudy-backend/internal/platform/dbctx"
	"github.com/yungbote/casestudy-backend/internal/platform/logger"
)

type ParticipantRepo interface {
	ListBySession(dbc dbctx.Context, sessionID uuid.UUID) ([]*types.Participant, error)
}

type participantRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewParticipantRepo(db *gorm.DB, log *logger.Logger) ParticipantRepo {
	return &participantRepo{db: db, log: log.With("repo", "ParticipantRepo")}
}

func (r *participantRepo) ListBySession(dbc dbctx.Context, sessionID uuid.UUID) ([]*types.Participant, error) {
	if sessionID == uuid.Nil {
		return nil, fmt.Errorf("missing session_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.Participant
	if err := txx.WithContext(dbc.Ctx).
		Where("session_id = ?", sessionID).
		Order("role_code ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
