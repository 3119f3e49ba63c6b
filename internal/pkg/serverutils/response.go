package serverutils

// ErrorBody is the JSON error shape of the chat API: {"error": ..., "details": ...}.
type ErrorBody struct {
	Code     int    `json:"-"`
	Error    string `json:"error"`
	Details  string `json:"details,omitempty"`
	FileHash string `json:"fileHash,omitempty"`
}

func ErrorResponse(code int, message string) *ErrorBody {
	return &ErrorBody{
		Code:  code,
		Error: message,
	}
}

func (b *ErrorBody) WithDetails(err error) *ErrorBody {
	if err != nil {
		b.Details = err.Error()
	}
	return b
}

func (b *ErrorBody) WithFileHash(fileHash string) *ErrorBody {
	b.FileHash = fileHash
	return b
}
