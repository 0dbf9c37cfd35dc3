package constants

// HTTP 請求相關常數
const (
	// 默認值（可被配置覆蓋）
	DefaultMaxRequestBodySize = 1 << 20 // 1MB
	DefaultRequestTimeout     = 30      // 秒
)

// 分頁相關常數
const (
	DefaultPageSize    = 50
	DefaultMaxPageSize = 100
	MinPageSize        = 1
)

// 訊息相關常數
const (
	DefaultMaxMessageLength = 5000
	// messages-updated 重新載入時每批讀取的消息數量
	DefaultRefreshBatch = 100
	MaxEmojiLength      = 32
)

// Rate Limiting 默認值
const (
	DefaultRateLimitPerMinute   = 100
	DefaultMessageRateLimit     = 30
	DefaultReactionRateLimit    = 60
	DefaultRateLimitBurst       = 10
	RateLimitCleanupIntervalMin = 10 // 分鐘
)

// WebSocket 連接相關常數
const (
	DefaultWSSendBuffer            = 64
	DefaultWSMaxMessageSize        = 8 << 10 // 8KB
	DefaultWSPingInterval          = 25      // 秒
	DefaultWSPongWait              = 60      // 秒
	DefaultWSWriteWait             = 10      // 秒
	DefaultWSMaxConnsPerUser       = 5
	DefaultWSMaxTotalConns         = 10000
	DefaultWSMinConnectInterval    = 2  // 秒
	WSConnectionCleanupIntervalMin = 10 // 分鐘
)

// MongoDB 查詢相關常數
const (
	MaxMongoQueryLimit     = 500
	DefaultReconcileBatch  = 500
	DefaultUserGroupsLimit = 200
)

// 用戶 ID 相關常數
const (
	MaxUserIDLength = 100
)
