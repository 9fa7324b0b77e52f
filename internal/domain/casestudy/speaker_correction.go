package casestudy

import (
	"time"

	"github.com/google/uuid"
)

// SpeakerCorrection is an operator's naming of a diarization tag during a live discussion. Seq
// increases by one per session so capture clients can poll with a cursor. A placeholder name
// ("Speaker 3") releases the tag back to automatic identification.
type SpeakerCorrection struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;index:idx_case_study_speaker_correction_session_seq,unique,priority:1" json:"session_id"`
	Seq       int64     `gorm:"column:seq;not null;index:idx_case_study_speaker_correction_session_seq,unique,priority:2" json:"seq"`

	SpeakerTag int    `gorm:"column:speaker_tag;not null" json:"speaker_tag"`
	Name       string `gorm:"column:name;not null" json:"name"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (SpeakerCorrection) TableName() string { return "case_study_speaker_correction" }
