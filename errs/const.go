package errs

const (
	ErrCode_OK                = 0
	ErrCode_Unknown           = 1
	ErrCode_ResourceExhausted = 2
	ErrCode_Canceled          = 3
	ErrCode_ReactorClosed     = 4
	ErrCode_Overload          = 5
	ErrCode_UnknownTimer      = 6
	ErrCode_NoCallback        = 7
	ErrCode_ReactorError      = 8
)

var (
	Unknown = CreateCodeError(ErrCode_Unknown, "UNKNOWN")

	// ResourceExhausted 创建定时器记录失败
	ResourceExhausted = CreateCodeError(ErrCode_ResourceExhausted, "RESOURCE_EXHAUSTED")
	// Canceled 等待被取消或被重新arm覆盖, 属于正常竞争结果, 不打日志
	Canceled = CreateCodeError(ErrCode_Canceled, "CANCELED")
	// ReactorClosed reactor已关闭
	ReactorClosed = CreateCodeError(ErrCode_ReactorClosed, "REACTOR_CLOSED")
	// Overload 任务队列满
	Overload = CreateCodeError(ErrCode_Overload, "OVERLOAD")
	// UnknownTimer 定时器id不存在
	UnknownTimer = CreateCodeError(ErrCode_UnknownTimer, "TIMER_UNKNOWN")
	// NoCallback 定时器没有回调, 不能启动
	NoCallback = CreateCodeError(ErrCode_NoCallback, "TIMER_NO_CALLBACK")
	// ReactorError 其他完成错误, 按回调拒绝继续处理
	ReactorError = CreateCodeError(ErrCode_ReactorError, "REACTOR_ERROR")
)
