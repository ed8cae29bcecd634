package core

// Logger is implemented by the logging services.
// args may contain errors, maps of extras and at most one Person affected.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Person identifies the user an event relates to, for error reporting.
type Person struct {
	ID       string
	Username string
	Email    string
}
