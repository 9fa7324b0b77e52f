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

type SessionRepo interface {
	Create(dbc dbctx.Context, session *types.Session) (*types.Session, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Session, error)
	// CompareAndSetStatus moves a session from one status to another. It reports false when the
	// session is no longer in the expected status.
	CompareAndSetStatus(dbc dbctx.Context, id uuid.UUID, from, to types.SessionStatus) (bool, error)
}

type sessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionRepo(db *gorm.DB, log *logger.Logger) SessionRepo {
	return &sessionRepo{db: db, log: log.With("repo", "SessionRepo")}
}

func (r *sessionRepo) Create(dbc dbctx.Context, session *types.Session) (*types.Session, error) {
	if session == nil {
		return nil, fmt.Errorf("missing session")
	}
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	for i := range session.Participants {
		if session.Participants[i].ID == uuid.Nil {
			session.Participants[i].ID = uuid.New()
		}
		session.Participants[i].SessionID = session.ID
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if err := txx.WithContext(dbc.Ctx).Create(session).Error; err != nil {
		return nil, err
	}
	return session, nil
}

// GetByID returns nil, nil when the session does not exist.
func (r *sessionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Session, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing session_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.Session
	err := txx.WithContext(dbc.Ctx).
		Preload("Participants", func(db *gorm.DB) *gorm.DB {
			return db.Order("role_code ASC")
		}).
		Where("id = ?", id).
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *sessionRepo) CompareAndSetStatus(dbc dbctx.Context, id uuid.UUID, from, to types.SessionStatus) (bool, error) {
	if id == uuid.Nil {
		return false, fmt.Errorf("missing session_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	res := txx.WithContext(dbc.Ctx).
		Model(&types.Session{}).
		Where("id = ? AND status = ?", id, string(from)).
		Update("status", string(to))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
