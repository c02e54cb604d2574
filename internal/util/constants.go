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
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// 活跃时长合并策略
const (
	CombineSum = "sum"
	CombineMax = "max"
)

// 分层阈值（分钟）
const (
	EngagedWeeklyMinutes   = 240
	EngagedLifetimeMinutes = 480
	RampingWeeklyMinutes   = 60
	RampingLifetimeMinutes = 120
)

// 观看进度达到该百分比即视为出勤
const AttendWatchPercent = 95
