package domain

// ErrorCode 对外稳定的机器可读错误码
//
// 客户端 API 的 error 字段只会出现这里定义的值，
// 不暴露内部错误类型或实现细节。
type ErrorCode string

const (
	CodeInvalidFormat      ErrorCode = "INVALID_FORMAT"       // 密钥格式不合法，未做任何查询
	CodeMissingParams      ErrorCode = "MISSING_PARAMS"       // 缺少必填参数
	CodeKeyNotFound        ErrorCode = "KEY_NOT_FOUND"        // 密钥不存在
	CodeKeyExpired         ErrorCode = "KEY_EXPIRED"          // 密钥已吊销或已过期
	CodeDeviceLimitReached ErrorCode = "DEVICE_LIMIT_REACHED" // 设备配额已满
	CodeNotActivated       ErrorCode = "NOT_ACTIVATED"        // 该设备没有有效激活记录
	CodeQuotaExceeded      ErrorCode = "QUOTA_EXCEEDED"       // 经销商签发配额耗尽
	CodeInvalidAPIKey      ErrorCode = "INVALID_API_KEY"      // 经销商认证失败
	CodeServerError        ErrorCode = "SERVER_ERROR"         // 非预期故障，可重试
)
