package casestudy

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/casestudy-backend/internal/domain"
	"github.com/yungbote/casestudy-backend/internal/platform/dbctx"
	"github.com/yungbote/casestudy-backend/internal/platform/logger"
)

type SpeakerCorrectionRepo interface {
	Create(dbc dbctx.Context, c *types.SpeakerCorrection) (*types.SpeakerCorrection, error)
	GetMaxSeq(dbc dbctx.Context, sessionID uuid.UUID) (int64, error)
	// ListAfter returns corrections with seq > afterSeq, oldest first.
	ListAfter(dbc dbctx.Context, sessionID uuid.UUID, afterSeq int64) ([]*types.SpeakerCorrection, error)
}

type speakerCorrectionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSpeakerCorrectionRepo(db *gorm.DB, log *logger.Logger) SpeakerCorrectionRepo {
	return &speakerCorrectionRepo{db: db, log: log.With("repo", "SpeakerCorrectionRepo")}
}

func (r *speakerCorrectionRepo) Create(dbc dbctx.Context, c *types.SpeakerCorrection) (*types.SpeakerCorrection, error) {
	if c == nil {
		return nil, fmt.Errorf("missing correction")
	}
	if c.SessionID == uuid.Nil {
		return nil, fmt.Errorf("missing session_id")
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if err := txx.WithContext(dbc.Ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

func (r *speakerCorrectionRepo) GetMaxSeq(dbc dbctx.Context, sessionID uuid.UUID) (int64, error) {
	if sessionID == uuid.Nil {
		return 0, fmt.Errorf("missing session_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var maxSeq int64
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.SpeakerCorrection{}).
		Select("COALESCE(MAX(seq), 0)").
		Where("session_id = ?", sessionID).
		Scan(&maxSeq).Error; err != nil {
		return 0, err
	}
	return maxSeq, nil
}

func (r *speakerCorrectionRepo) ListAfter(dbc dbctx.Context, sessionID uuid.UUID, afterSeq int64) ([]*types.SpeakerCorrection, error) {
	if sessionID == uuid.Nil {
		return nil, fmt.Errorf("missing session_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.SpeakerCorrection
	if err := txx.WithContext(dbc.Ctx).
		Where("session_id = ? AND seq > ?", sessionID, afterSeq).
		Order("seq ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
