package runindex

import "codeberg.org/meshalyzer/rigctl/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDBPath = errors.ErrorCode("runindex_invalid_db_path")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("runindex_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("runindex_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("runindex_schema_migration_failed")

	// Storage Errors
	ErrStorageInit  = errors.ErrInitFailed
	ErrStorageClose = errors.ErrShutdownFailed
	ErrRecordFailed = errors.ErrorCode("runindex_record_failed")
	ErrQueryFailed  = errors.ErrorCode("runindex_query_failed")
	ErrInvalidEntry = errors.ErrorCode("runindex_invalid_entry")

	// Operation Errors
	ErrOperationTimeout = errors.ErrTimeout
)

func init() {
	errors.RegisterMessage(ErrInvalidDBPath, "Run index database path is empty")
	errors.RegisterMessage(ErrSchemaInitFailed, "Failed to create run index schema")
	errors.RegisterMessage(ErrSchemaValidationFailed, "Failed to validate run index schema")
	errors.RegisterMessage(ErrSchemaMigrationFailed, "Failed to migrate run index schema")
	errors.RegisterMessage(ErrRecordFailed, "Failed to record run")
	errors.RegisterMessage(ErrQueryFailed, "Failed to query run index")
	errors.RegisterMessage(ErrInvalidEntry, "Invalid run index entry")
}
