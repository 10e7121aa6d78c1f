// Package repository 监测会话注册表
package repository

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Marwa-001/neural-stride/internal/models"
)

// SessionRepository 监测会话仓库（monitor_sessions 表）
type SessionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSessionRepository 创建会话仓库
func NewSessionRepository(db *sql.DB, logger *zap.Logger) *SessionRepository {
	return &SessionRepository{
		db:     db,
		logger: logger,
	}
}

// Register 注册一个监测会话（会话启动时的注册握手）
//
// 同一 client_id 已有未结束的会话时先将其关闭。
func (r *SessionRepository) Register(session *models.MonitorSession) error {
	closeQuery := `
		UPDATE monitor_sessions
		SET ended_at = NOW()
		WHERE client_id = $1 AND ended_at IS NULL
	`
	if _, err := r.db.Exec(closeQuery, session.ClientID); err != nil {
		return fmt.Errorf("failed to close stale sessions: %w", err)
	}

	insertQuery := `
		INSERT INTO monitor_sessions (
			session_id,
			client_id,
			peer_id,
			monitoring,
			started_at
		) VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Exec(
		insertQuery,
		session.SessionID,
		session.ClientID,
		session.PeerID,
		session.Monitoring,
		session.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to register session: %w", err)
	}

	r.logger.Info("Registered monitor session",
		zap.String("session_id", session.SessionID),
		zap.String("client_id", session.ClientID),
	)

	return nil
}

// GetBySessionID 按会话 ID 查询
func (r *SessionRepository) GetBySessionID(sessionID string) (*models.MonitorSession, error) {
	query := `
		SELECT session_id, client_id, peer_id, monitoring, started_at, ended_at
		FROM monitor_sessions
		WHERE session_id = $1
	`

	var session models.MonitorSession
	var endedAt sql.NullTime

	err := r.db.QueryRow(query, sessionID).Scan(
		&session.SessionID,
		&session.ClientID,
		&session.PeerID,
		&session.Monitoring,
		&session.StartedAt,
		&endedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("session not found: %s", sessionID)
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	if endedAt.Valid {
		session.EndedAt = &endedAt.Time
	}

	return &session, nil
}

// GetActiveByClientID 按客户端 ID 查询未结束的会话
func (r *SessionRepository) GetActiveByClientID(clientID string) (*models.MonitorSession, error) {
	query := `
		SELECT session_id, client_id, peer_id, monitoring, started_at, ended_at
		FROM monitor_sessions
		WHERE client_id = $1 AND ended_at IS NULL
		ORDER BY started_at DESC
		LIMIT 1
	`

	var session models.MonitorSession
	var endedAt sql.NullTime

	err := r.db.QueryRow(query, clientID).Scan(
		&session.SessionID,
		&session.ClientID,
		&session.PeerID,
		&session.Monitoring,
		&session.StartedAt,
		&endedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // 没有活跃会话
		}
		return nil, fmt.Errorf("failed to query active session: %w", err)
	}

	if endedAt.Valid {
		session.EndedAt = &endedAt.Time
	}

	return &session, nil
}

// UpdateMonitoring 更新会话的监测开关状态
func (r *SessionRepository) UpdateMonitoring(sessionID string, monitoring bool) error {
	query := `
		UPDATE monitor_sessions
		SET monitoring = $2
		WHERE session_id = $1 AND ended_at IS NULL
	`

	result, err := r.db.Exec(query, sessionID, monitoring)
	if err != nil {
		return fmt.Errorf("failed to update monitoring state: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no active session: %s", sessionID)
	}

	r.logger.Debug("Updated monitoring state",
		zap.String("session_id", sessionID),
		zap.Bool("monitoring", monitoring),
	)

	return nil
}

// CloseSession 结束会话
func (r *SessionRepository) CloseSession(sessionID string, endedAt time.Time) error {
	query := `
		UPDATE monitor_sessions
		SET ended_at = $2, monitoring = FALSE
		WHERE session_id = $1 AND ended_at IS NULL
	`

	result, err := r.db.Exec(query, sessionID, endedAt)
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no active session: %s", sessionID)
	}

	r.logger.Info("Closed monitor session", zap.String("session_id", sessionID))

	return nil
}

// ListActiveSessions 列出所有未结束的会话
func (r *SessionRepository) ListActiveSessions() ([]models.MonitorSession, error) {
	query := `
		SELECT session_id, client_id, peer_id, monitoring, started_at, ended_at
		FROM monitor_sessions
		WHERE ended_at IS NULL
		ORDER BY started_at
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.MonitorSession
	for rows.Next() {
		var session models.MonitorSession
		var endedAt sql.NullTime

		if err := rows.Scan(
			&session.SessionID,
			&session.ClientID,
			&session.PeerID,
			&session.Monitoring,
			&session.StartedAt,
			&endedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}

		if endedAt.Valid {
			session.EndedAt = &endedAt.Time
		}

		sessions = append(sessions, session)
	}

	return sessions, nil
}
