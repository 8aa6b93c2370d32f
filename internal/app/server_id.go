package app

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// GenerateInstanceID 生成网关实例ID
// 优先使用环境变量 PTSP01_INSTANCE_ID，否则生成 ptsp01-gateway-{hostname}-{uuid前8位}
func GenerateInstanceID() string {
	if id := os.Getenv("PTSP01_INSTANCE_ID"); id != "" {
		return id
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	shortUUID := uuid.New().String()[:8]
	return fmt.Sprintf("ptsp01-gateway-%s-%s", hostname, shortUUID)
}
