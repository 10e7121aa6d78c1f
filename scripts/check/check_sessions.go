package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"strconv"

	_ "github.com/lib/pq"
)

func main() {
	// 从环境变量获取数据库连接信息，如果没有则使用默认值
	host := getEnv("DB_HOST", "localhost")
	port := parseInt(getEnv("DB_PORT", "5432"), 5432)
	user := getEnv("DB_USER", "postgres")
	password := getEnv("DB_PASSWORD", "postgres")
	dbname := getEnv("DB_NAME", "neuralstride")
	sslmode := getEnv("DB_SSLMODE", "disable")

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)

	// 连接数据库
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// 测试连接
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	// 1. 检查未结束的监测会话
	fmt.Println("1. 未结束的监测会话")
	query1 := `
		SELECT
			session_id,
			client_id,
			peer_id,
			monitoring,
			started_at
		FROM monitor_sessions
		WHERE ended_at IS NULL
		ORDER BY started_at DESC;
	`

	rows1, err := db.Query(query1)
	if err != nil {
		log.Fatalf("Failed to query active sessions: %v", err)
	}
	defer rows1.Close()

	activeCount := 0
	for rows1.Next() {
		var sessionID, clientID, peerID string
		var monitoring bool
		var startedAt string
		if err := rows1.Scan(&sessionID, &clientID, &peerID, &monitoring, &startedAt); err != nil {
			log.Fatalf("Failed to scan session: %v", err)
		}
		fmt.Printf("  session=%s client=%s peer=%s monitoring=%v started=%s\n",
			sessionID, clientID, peerID, monitoring, startedAt)
		activeCount++
	}
	fmt.Printf("  共 %d 个未结束会话\n\n", activeCount)

	// 2. 检查超过 24 小时仍未结束的可疑会话
	fmt.Println("2. 超过 24 小时未结束的会话（疑似泄漏）")
	query2 := `
		SELECT session_id, client_id, started_at
		FROM monitor_sessions
		WHERE ended_at IS NULL
		  AND started_at < NOW() - INTERVAL '24 hours'
		ORDER BY started_at;
	`

	rows2, err := db.Query(query2)
	if err != nil {
		log.Fatalf("Failed to query stale sessions: %v", err)
	}
	defer rows2.Close()

	staleCount := 0
	for rows2.Next() {
		var sessionID, clientID, startedAt string
		if err := rows2.Scan(&sessionID, &clientID, &startedAt); err != nil {
			log.Fatalf("Failed to scan stale session: %v", err)
		}
		fmt.Printf("  session=%s client=%s started=%s\n", sessionID, clientID, startedAt)
		staleCount++
	}
	if staleCount == 0 {
		fmt.Println("  无")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(s string, defaultValue int) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return defaultValue
}
