package util

const (
	DateFormat = "2006-01-02"
	TimeFormat = "2006-01-02 15:04:05"
)

const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
)

const (
	SandboxDocker = "docker"
	SandboxJudge0 = "judge0"
)

const (
	LockLocal = "local"
	LockRedis = "redis"
)

// 分析时间窗口
const (
	Timeframe24h = "24h"
	Timeframe7d  = "7d"
	Timeframe30d = "30d"
	Timeframe90d = "90d"
	TimeframeAll = "all"
)
