package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/boardwatch/boardwatch/pkg/errors"
)

// ConfigRepositoryInterface defines the interface for watch configuration operations
type ConfigRepositoryInterface interface {
	Create(ctx context.Context, config *WatchConfig) error
	GetByID(ctx context.Context, id uuid.UUID) (*WatchConfig, error)
	Update(ctx context.Context, config *WatchConfig) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListActive(ctx context.Context) ([]*WatchConfig, error)
	List(ctx context.Context) ([]*WatchConfig, error)
	UpdateExecutionStatus(ctx context.Context, id uuid.UUID, executedAt time.Time, status, message string) error
}

// ConfigRepository handles watch configuration database operations
type ConfigRepository struct {
	db *DB
}

// NewConfigRepository creates a new watch configuration repository
func NewConfigRepository(db *DB) *ConfigRepository {
	return &ConfigRepository{db: db}
}

// Create creates a new watch configuration
func (r *ConfigRepository) Create(ctx context.Context, config *WatchConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO watch_configs (id, name, board, keywords, post_count, chat_id, schedule, is_active)
		VALUES (:id, :name, :board, :keywords, :post_count, :chat_id, :schedule, :is_active)`

	if config.ID == uuid.Nil {
		config.ID = uuid.New()
	}
	config.CreatedAt = time.Now()
	config.UpdatedAt = time.Now()

	_, err := r.db.NamedExecContext(ctx, query, config)
	if err != nil {
		return errors.NewStoreError("create config", "failed to create watch configuration").WithCause(err)
	}

	return nil
}

// GetByID retrieves a watch configuration by ID
func (r *ConfigRepository) GetByID(ctx context.Context, id uuid.UUID) (*WatchConfig, error) {
	var config WatchConfig
	query := `SELECT * FROM watch_configs WHERE id = $1`

	err := r.db.GetContext(ctx, &config, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFoundError("watch configuration")
		}
		return nil, errors.NewStoreError("get config", "failed to get watch configuration").WithCause(err)
	}

	return &config, nil
}

// Update updates a watch configuration
func (r *ConfigRepository) Update(ctx context.Context, config *WatchConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}

	query := `
		UPDATE watch_configs
		SET name = :name, board = :board, keywords = :keywords, post_count = :post_count,
		    chat_id = :chat_id, schedule = :schedule, is_active = :is_active, updated_at = NOW()
		WHERE id = :id`

	result, err := r.db.NamedExecContext(ctx, query, config)
	if err != nil {
		return errors.NewStoreError("update config", "failed to update watch configuration").WithCause(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewStoreError("update config", "failed to get rows affected").WithCause(err)
	}

	if rowsAffected == 0 {
		return errors.NewNotFoundError("watch configuration")
	}

	return nil
}

// Delete deletes a watch configuration
func (r *ConfigRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM watch_configs WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return errors.NewStoreError("delete config", "failed to delete watch configuration").WithCause(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewStoreError("delete config", "failed to get rows affected").WithCause(err)
	}

	if rowsAffected == 0 {
		return errors.NewNotFoundError("watch configuration")
	}

	return nil
}

// ListActive retrieves all active watch configurations
func (r *ConfigRepository) ListActive(ctx context.Context) ([]*WatchConfig, error) {
	var configs []*WatchConfig
	query := `SELECT * FROM watch_configs WHERE is_active = true ORDER BY created_at`

	err := r.db.SelectContext(ctx, &configs, query)
	if err != nil {
		return nil, errors.NewStoreError("list configs", "failed to list active configurations").WithCause(err)
	}

	return configs, nil
}

// List retrieves all watch configurations
func (r *ConfigRepository) List(ctx context.Context) ([]*WatchConfig, error) {
	var configs []*WatchConfig
	query := `SELECT * FROM watch_configs ORDER BY created_at`

	err := r.db.SelectContext(ctx, &configs, query)
	if err != nil {
		return nil, errors.NewStoreError("list configs", "failed to list configurations").WithCause(err)
	}

	return configs, nil
}

// UpdateExecutionStatus records the outcome of the latest run on the
// configuration row itself for quick status listings
func (r *ConfigRepository) UpdateExecutionStatus(ctx context.Context, id uuid.UUID, executedAt time.Time, status, message string) error {
	query := `
		UPDATE watch_configs
		SET last_executed_at = $2, last_execution_status = $3, last_execution_message = $4, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, executedAt, status, message)
	if err != nil {
		return errors.NewStoreError("update config status", "failed to update execution status").WithCause(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewStoreError("update config status", "failed to get rows affected").WithCause(err)
	}

	if rowsAffected == 0 {
		return errors.NewNotFoundError("watch configuration")
	}

	return nil
}

// ExecutionRepositoryInterface defines the interface for execution record operations
type ExecutionRepositoryInterface interface {
	Create(ctx context.Context, record *ExecutionRecord) error
	ListByConfig(ctx context.Context, configID uuid.UUID, limit int) ([]*ExecutionRecord, error)
	ListRecent(ctx context.Context, limit int) ([]*ExecutionRecord, error)
}

// ExecutionRepository handles execution record database operations
type ExecutionRepository struct {
	db *DB
}

// NewExecutionRepository creates a new execution record repository
func NewExecutionRepository(db *DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

// Create persists an execution record
func (r *ExecutionRepository) Create(ctx context.Context, record *ExecutionRecord) error {
	query := `
		INSERT INTO executions (id, config_id, executed_at, status, articles_found, articles_sent, duration_seconds, error_message)
		VALUES (:id, :config_id, :executed_at, :status, :articles_found, :articles_sent, :duration_seconds, :error_message)`

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.ExecutedAt.IsZero() {
		record.ExecutedAt = time.Now()
	}

	_, err := r.db.NamedExecContext(ctx, query, record)
	if err != nil {
		return errors.NewStoreError("create execution", "failed to create execution record").WithCause(err)
	}

	return nil
}

// ListByConfig retrieves the most recent execution records for a configuration
func (r *ExecutionRepository) ListByConfig(ctx context.Context, configID uuid.UUID, limit int) ([]*ExecutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	var records []*ExecutionRecord
	query := `SELECT * FROM executions WHERE config_id = $1 ORDER BY executed_at DESC LIMIT $2`

	err := r.db.SelectContext(ctx, &records, query, configID, limit)
	if err != nil {
		return nil, errors.NewStoreError("list executions", "failed to list execution records").WithCause(err)
	}

	return records, nil
}

// ListRecent retrieves the most recent execution records across all configurations
func (r *ExecutionRepository) ListRecent(ctx context.Context, limit int) ([]*ExecutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	var records []*ExecutionRecord
	query := `SELECT * FROM executions ORDER BY executed_at DESC LIMIT $1`

	err := r.db.SelectContext(ctx, &records, query, limit)
	if err != nil {
		return nil, errors.NewStoreError("list executions", "failed to list execution records").WithCause(err)
	}

	return records, nil
}
