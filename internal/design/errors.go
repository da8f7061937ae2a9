package design

// Error はコード付きの検証エラーを表します。
type Error struct {
	Code    string
	Message string
	Err     error
}

// Error はエラーメッセージを返します。
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap は元のエラーを返します。
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}
