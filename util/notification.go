package util

// Notification carries a user-facing message emitted by background services
type Notification struct {
	Title   string
	Message string
}
