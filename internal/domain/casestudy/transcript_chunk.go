package casestudy

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ChunkKind string

const (
	ChunkKindRolling ChunkKind = "rolling"
	ChunkKindFull    ChunkKind = "full"
)

// TranscriptChunk is append-only; no repository method updates a stored row.
type TranscriptChunk struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;index;index:idx_case_study_chunk_session_version,unique,priority:1" json:"session_id"`
	Version   int64     `gorm:"column:version;not null;index:idx_case_study_chunk_session_version,unique,priority:2" json:"version"`
	Kind      string    `gorm:"column:kind;not null;default:'rolling'" json:"kind"`

	RawText          string `gorm:"column:raw_text;type:text;not null" json:"raw_text"`
	ConsolidatedText string `gorm:"column:consolidated_text;type:text;not null" json:"consolidated_text"`

	// label -> participant id
	SpeakerMapping  datatypes.JSON `gorm:"type:jsonb;column:speaker_mapping;not null" json:"speaker_mapping"`
	DurationSeconds int            `gorm:"column:duration_seconds;not null" json:"duration_seconds"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (TranscriptChunk) TableName() string { return "case_study_transcript_chunk" }
