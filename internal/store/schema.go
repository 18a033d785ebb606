package store

import (
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

// Table and column names shared by the repositories.
const (
	tableProgress     = "progress_records"
	tableCompletions  = "module_completions"
	tableAttempts     = "quiz_attempts"
	tableCertificates = "certificates"
	tableEvents       = "progress_events"
	tableSessions     = "quiz_sessions"
)

var (
	progressColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "learner_id", Type: field.TypeString},
		{Name: "course_id", Type: field.TypeString},
		{Name: "last_accessed_module", Type: field.TypeString, Nullable: true},
		{Name: "version", Type: field.TypeInt64, Default: 0},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	progressTable = &schema.Table{
		Name:       tableProgress,
		Columns:    progressColumns,
		PrimaryKey: []*schema.Column{progressColumns[0]},
		Indexes: []*schema.Index{
			{Name: "progress_learner_course", Unique: true, Columns: []*schema.Column{progressColumns[1], progressColumns[2]}},
		},
	}

	completionColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "learner_id", Type: field.TypeString},
		{Name: "course_id", Type: field.TypeString},
		{Name: "module_id", Type: field.TypeString},
		{Name: "completed_at", Type: field.TypeTime},
	}
	completionTable = &schema.Table{
		Name:       tableCompletions,
		Columns:    completionColumns,
		PrimaryKey: []*schema.Column{completionColumns[0]},
		Indexes: []*schema.Index{
			{Name: "completion_learner_course_module", Unique: true, Columns: []*schema.Column{completionColumns[1], completionColumns[2], completionColumns[3]}},
		},
	}

	attemptColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "learner_id", Type: field.TypeString},
		{Name: "course_id", Type: field.TypeString},
		{Name: "module_id", Type: field.TypeString},
		{Name: "attempt_count", Type: field.TypeInt, Default: 0},
		{Name: "failures", Type: field.TypeInt, Default: 0},
		{Name: "last_failure_at", Type: field.TypeTime, Nullable: true},
		{Name: "updated_at", Type: field.TypeTime},
	}
	attemptTable = &schema.Table{
		Name:       tableAttempts,
		Columns:    attemptColumns,
		PrimaryKey: []*schema.Column{attemptColumns[0]},
		Indexes: []*schema.Index{
			{Name: "attempt_learner_course_module", Unique: true, Columns: []*schema.Column{attemptColumns[1], attemptColumns[2], attemptColumns[3]}},
		},
	}

	certificateColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString},
		{Name: "learner_id", Type: field.TypeString},
		{Name: "course_id", Type: field.TypeString},
		{Name: "module_count", Type: field.TypeInt},
		{Name: "issued_at", Type: field.TypeTime},
	}
	certificateTable = &schema.Table{
		Name:       tableCertificates,
		Columns:    certificateColumns,
		PrimaryKey: []*schema.Column{certificateColumns[0]},
		Indexes: []*schema.Index{
			// One certificate per (learner, course): concurrent issuers collapse on this index.
			{Name: "certificate_learner_course", Unique: true, Columns: []*schema.Column{certificateColumns[1], certificateColumns[2]}},
		},
	}

	eventColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "type", Type: field.TypeString},
		{Name: "learner_id", Type: field.TypeString},
		{Name: "course_id", Type: field.TypeString},
		{Name: "module_id", Type: field.TypeString, Default: ""},
		{Name: "certificate_id", Type: field.TypeString, Default: ""},
		{Name: "data", Type: field.TypeString, Size: 2147483647, Default: ""},
		{Name: "occurred_at", Type: field.TypeTime},
	}
	eventTable = &schema.Table{
		Name:       tableEvents,
		Columns:    eventColumns,
		PrimaryKey: []*schema.Column{eventColumns[0]},
		Indexes: []*schema.Index{
			{Name: "event_learner_course", Columns: []*schema.Column{eventColumns[2], eventColumns[3]}},
		},
	}

	sessionColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString},
		{Name: "learner_id", Type: field.TypeString},
		{Name: "course_id", Type: field.TypeString},
		{Name: "module_id", Type: field.TypeString},
		{Name: "attempt_number", Type: field.TypeInt},
		{Name: "question_set", Type: field.TypeInt, Default: 0},
		{Name: "started_at", Type: field.TypeTime},
		{Name: "deadline", Type: field.TypeTime},
		{Name: "answers", Type: field.TypeString, Size: 2147483647, Default: "{}"},
		{Name: "status", Type: field.TypeString},
		{Name: "submitted_at", Type: field.TypeTime, Nullable: true},
		{Name: "passed", Type: field.TypeBool, Default: false},
		{Name: "correct", Type: field.TypeInt, Default: 0},
		{Name: "total", Type: field.TypeInt, Default: 0},
		{Name: "auto_submitted", Type: field.TypeBool, Default: false},
	}
	sessionTable = &schema.Table{
		Name:       tableSessions,
		Columns:    sessionColumns,
		PrimaryKey: []*schema.Column{sessionColumns[0]},
		Indexes: []*schema.Index{
			{Name: "session_learner_course_module", Columns: []*schema.Column{sessionColumns[1], sessionColumns[2], sessionColumns[3]}},
			{Name: "session_status_deadline", Columns: []*schema.Column{sessionColumns[9], sessionColumns[7]}},
		},
	}

	// tables lists every table managed by the store migration.
	tables = []*schema.Table{
		progressTable,
		completionTable,
		attemptTable,
		certificateTable,
		eventTable,
		sessionTable,
	}
)
