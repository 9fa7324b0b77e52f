package casestudy

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionStatusCreated              SessionStatus = "created"
	SessionStatusDiscussionInProgress SessionStatus = "discussion_in_progress"
	SessionStatusDiscussionCompleted  SessionStatus = "discussion_completed"
	SessionStatusInterviewInProgress  SessionStatus = "interview_in_progress"
	SessionStatusCompleted            SessionStatus = "completed"
)

var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionStatusCreated:              {SessionStatusDiscussionInProgress},
	SessionStatusDiscussionInProgress: {SessionStatusDiscussionCompleted},
	SessionStatusDiscussionCompleted:  {SessionStatusDiscussionInProgress, SessionStatusInterviewInProgress},
	SessionStatusInterviewInProgress:  {SessionStatusCompleted},
}

func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusCreated, SessionStatusDiscussionInProgress, SessionStatusDiscussionCompleted,
		SessionStatusInterviewInProgress, SessionStatusCompleted:
		return true
	}
	return false
}

// CanTransition reports whether a session may move from s to next.
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	for _, allowed := range sessionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

const MaxParticipants = 5

type Session struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name     string    `gorm:"column:name;not null" json:"name"`
	Scenario string    `gorm:"column:scenario;type:text;not null;default:''" json:"scenario,omitempty"`
	Status   string    `gorm:"column:status;not null;index" json:"status"`

	ExpectedDurationSeconds int `gorm:"column:expected_duration_seconds;not null;default:7200" json:"expected_duration_seconds"`

	Participants []Participant `gorm:"foreignKey:SessionID" json:"participants,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Session) TableName() string { return "case_study_session" }

var RoleCodes = []string{"A", "B", "C", "D", "E"}

func ValidRoleCode(code string) bool {
	for _, c := range RoleCodes {
		if c == code {
			return true
		}
	}
	return false
}

type Participant struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;index;index:idx_case_study_participant_session_role,unique,priority:1" json:"session_id"`

	Name     string `gorm:"column:name;not null" json:"name"`
	RoleCode string `gorm:"column:role_code;not null;index:idx_case_study_participant_session_role,unique,priority:2" json:"role_code"`
	RoleName string `gorm:"column:role_name;not null;default:''" json:"role_name,omitempty"`

	// Diarization tag assigned by an operator, if any.
	SpeakerLabel string `gorm:"column:speaker_label;not null;default:''" json:"speaker_label,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (Participant) TableName() string { return "case_study_participant" }

// DisplayName is the form substituted into consolidated transcripts.
func (p Participant) DisplayName() string {
	return p.Name + " (" + p.RoleCode + ")"
}
