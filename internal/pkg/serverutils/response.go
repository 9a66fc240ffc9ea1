package serverutils

// BaseResponse is the envelope of every JSON response.
type BaseResponse[T any] struct {
	Success    bool   `json:"success"`
	Code       int    `json:"code"`
	Message    string `json:"message"`
	ReasonCode string `json:"reason_code,omitempty"`
	Data       T      `json:"data"`
}

func SuccessResponse[T any](message string, data T) BaseResponse[T] {
	return BaseResponse[T]{
		Success: true,
		Code:    200,
		Message: message,
		Data:    data,
	}
}

func ErrorResponse(code int, message string) BaseResponse[any] {
	return BaseResponse[any]{
		Success: false,
		Code:    code,
		Message: message,
	}
}

// ReasonResponse is an error envelope carrying a stable reason code.
func ReasonResponse(code int, reasonCode, message string) BaseResponse[any] {
	res := ErrorResponse(code, message)
	res.ReasonCode = reasonCode
	return res
}
