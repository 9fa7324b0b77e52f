package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/casestudy-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(types.Models()...); err != nil {
		return fmt.Errorf("automigrate case study models: %w", err)
	}
	return nil
}

// Postgres-only indexes behind the dashboard polling queries: evaluations newer than a cursor,
// and the latest chunks of a session.
var caseStudyIndexes = []struct{ name, ddl string }{
	{"idx_case_study_eval_session_created", `CREATE INDEX IF NOT EXISTS idx_case_study_eval_session_created
		ON case_study_competency_evaluation (session_id, created_at)`},
	{"idx_case_study_eval_session_participant", `CREATE INDEX IF NOT EXISTS idx_case_study_eval_session_participant
		ON case_study_competency_evaluation (session_id, participant_id, chunk_version)`},
	{"idx_case_study_chunk_session_version_desc", `CREATE INDEX IF NOT EXISTS idx_case_study_chunk_session_version_desc
		ON case_study_transcript_chunk (session_id, version DESC)`},
}

func EnsureCaseStudyIndexes(db *gorm.DB) error {
	if db.Dialector.Name() != DriverPostgres {
		return nil
	}
	for _, idx := range caseStudyIndexes {
		if err := db.Exec(idx.ddl).Error; err != nil {
			return fmt.Errorf("create %s: %w", idx.name, err)
		}
	}
	return nil
}
