package core

// Logger logs messages and reports them to an external error tracker.
// args may hold errors, a map[string]interface{} of extras and the acting Actor.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Actor identifies who triggered an operation (API user, admin CLI, scheduled job).
type Actor struct {
	ID       string
	Username string
	Email    string
}
