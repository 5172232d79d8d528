package custody

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	xerrors "SafeGuard-Console/internal/errors"
	"github.com/go-sql-driver/mysql"
)

// MySQLJournal 使用 MySQL 持久化流程记录。
type MySQLJournal struct {
	db *sql.DB
}

// NewMySQLJournal 创建一个新的 MySQLJournal 并确保表结构存在。
func NewMySQLJournal(dsn string) (*MySQLJournal, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	journal := &MySQLJournal{db: db}
	if err := journal.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return journal, nil
}

func (j *MySQLJournal) initSchema() error {
	const schema = `CREATE TABLE IF NOT EXISTS custody_flows (
        id VARCHAR(64) PRIMARY KEY,
        kind VARCHAR(16) NOT NULL,
        email VARCHAR(255) DEFAULT '',
        safe_address VARCHAR(64) DEFAULT '',
        amount_wei VARCHAR(80) DEFAULT '',
        correlation_hash VARCHAR(128) DEFAULT '',
        tx_hash VARCHAR(128) DEFAULT '',
        ready_to_execute TINYINT(1) NOT NULL DEFAULT 0,
        execute_url TEXT,
        status VARCHAR(32) NOT NULL,
        error_code VARCHAR(64) DEFAULT '',
        last_error TEXT,
        receipt_attempts INT NOT NULL DEFAULT 0,
        created_at BIGINT NOT NULL,
        updated_at BIGINT NOT NULL,
        INDEX idx_flow_status (status),
        INDEX idx_flow_updated (updated_at)
)`

	if _, err := j.db.Exec(schema); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 custody_flows 表失败")
	}
	return nil
}

// Create 插入新流程记录。
func (j *MySQLJournal) Create(ctx context.Context, flow *Flow) error {
	if flow == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "flow 不能为空")
	}
	if strings.TrimSpace(flow.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "流程 ID 不能为空")
	}

	now := time.Now()
	flow.CreatedAt = now
	flow.UpdatedAt = now

	const stmt = `INSERT INTO custody_flows
        (id, kind, email, safe_address, amount_wei, correlation_hash, tx_hash, ready_to_execute, execute_url,
         status, error_code, last_error, receipt_attempts, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := j.db.ExecContext(ctx, stmt,
		flow.ID,
		string(flow.Kind),
		flow.Email,
		flow.SafeAddress,
		flow.AmountWei,
		flow.CorrelationHash,
		flow.TxHash,
		flow.ReadyToExecute,
		flow.ExecuteURL,
		string(flow.Status),
		flow.ErrorCode,
		flow.LastError,
		flow.ReceiptAttempts,
		now.Unix(),
		now.Unix(),
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return xerrors.New(xerrors.CodeConflict, fmt.Sprintf("流程 %s 已存在", flow.ID))
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入流程失败")
	}
	return nil
}

// Get 按 ID 查询流程。
func (j *MySQLJournal) Get(ctx context.Context, id string) (*Flow, error) {
	const stmt = selectColumns + ` FROM custody_flows WHERE id = ?`
	row := j.db.QueryRowContext(ctx, stmt, id)
	flow, err := scanFlow(row)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrFlowNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询流程失败")
	}
	return flow, nil
}

// UpdateStatus 更新流程状态并应用增量修改。
func (j *MySQLJournal) UpdateStatus(ctx context.Context, id string, status Status, update Update) error {
	setClauses := []string{"status = ?", "updated_at = ?"}
	args := []any{string(status), time.Now().Unix()}

	if update.CorrelationHash != nil {
		setClauses = append(setClauses, "correlation_hash = ?")
		args = append(args, *update.CorrelationHash)
	}
	if update.TxHash != nil {
		setClauses = append(setClauses, "tx_hash = ?")
		args = append(args, *update.TxHash)
	}
	if update.ExecuteURL != nil {
		setClauses = append(setClauses, "execute_url = ?")
		args = append(args, *update.ExecuteURL)
	}
	if update.ReadyToExecute != nil {
		setClauses = append(setClauses, "ready_to_execute = ?")
		args = append(args, *update.ReadyToExecute)
	}
	if update.ReceiptAttempts != nil {
		setClauses = append(setClauses, "receipt_attempts = ?")
		args = append(args, *update.ReceiptAttempts)
	}
	if update.ErrorCode != nil {
		setClauses = append(setClauses, "error_code = ?")
		args = append(args, *update.ErrorCode)
	}
	if update.LastError != nil {
		setClauses = append(setClauses, "last_error = ?")
		args = append(args, *update.LastError)
	}

	query := "UPDATE custody_flows SET " + strings.Join(setClauses, ", ") + " WHERE id = ?"
	args = append(args, id)

	res, err := j.db.ExecContext(ctx, query, args...)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新流程状态失败")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		if _, getErr := j.Get(ctx, id); getErr != nil {
			return getErr
		}
	}
	return nil
}

// List 返回按更新时间倒序排列的最近流程。
func (j *MySQLJournal) List(ctx context.Context, limit int) ([]*Flow, error) {
	if limit <= 0 {
		limit = 50
	}

	const stmt = selectColumns + ` FROM custody_flows ORDER BY updated_at DESC, created_at DESC, id DESC LIMIT ?`
	rows, err := j.db.QueryContext(ctx, stmt, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询流程列表失败")
	}
	defer rows.Close()

	flows := make([]*Flow, 0, limit)
	for rows.Next() {
		flow, err := scanFlow(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析流程记录失败")
		}
		flows = append(flows, flow)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历流程失败")
	}
	return flows, nil
}

// Stats 返回按状态聚合的计数。
func (j *MySQLJournal) Stats(ctx context.Context) (FlowStats, error) {
	const stmt = `SELECT
        COUNT(*) AS total,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS running,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS awaiting,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS succeeded,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS reverted,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS failed
        FROM custody_flows`

	row := j.db.QueryRowContext(ctx, stmt,
		string(StatusRunning),
		string(StatusAwaitingReceipt),
		string(StatusSucceeded),
		string(StatusReverted),
		string(StatusFailed),
	)

	var stats FlowStats
	var running, awaiting, succeeded, reverted, failed sql.NullInt64
	if err := row.Scan(&stats.Total, &running, &awaiting, &succeeded, &reverted, &failed); err != nil {
		return FlowStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询流程统计失败")
	}
	stats.Running = running.Int64
	stats.AwaitingReceipt = awaiting.Int64
	stats.Succeeded = succeeded.Int64
	stats.Reverted = reverted.Int64
	stats.Failed = failed.Int64
	return stats, nil
}

// Close 关闭底层数据库连接。
func (j *MySQLJournal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

const selectColumns = `SELECT id, kind, email, safe_address, amount_wei, correlation_hash, tx_hash,
        ready_to_execute, execute_url, status, error_code, last_error, receipt_attempts, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFlow(row rowScanner) (*Flow, error) {
	var flow Flow
	var kind, status string
	var executeURL, lastError sql.NullString
	var createdAt, updatedAt int64

	if err := row.Scan(
		&flow.ID,
		&kind,
		&flow.Email,
		&flow.SafeAddress,
		&flow.AmountWei,
		&flow.CorrelationHash,
		&flow.TxHash,
		&flow.ReadyToExecute,
		&executeURL,
		&status,
		&flow.ErrorCode,
		&lastError,
		&flow.ReceiptAttempts,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	flow.Kind = Kind(kind)
	flow.Status = Status(status)
	flow.ExecuteURL = executeURL.String
	flow.LastError = lastError.String
	flow.CreatedAt = time.Unix(createdAt, 0)
	flow.UpdatedAt = time.Unix(updatedAt, 0)
	return &flow, nil
}

var _ Journal = (*MySQLJournal)(nil)
