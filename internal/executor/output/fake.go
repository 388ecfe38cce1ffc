package output

import "context"

// FakeLogger discards everything; used where only Notify/Respond
// behavior matters to a test.
type FakeLogger struct{}

// Info implements Logger.
func (FakeLogger) Info(string, ...interface{}) {}

// FakeNotifier records every payload it receives.
type FakeNotifier struct {
	Err      error
	Payloads []map[string]interface{}
}

// Notify implements Notifier.
func (f *FakeNotifier) Notify(_ context.Context, payload map[string]interface{}) error {
	f.Payloads = append(f.Payloads, payload)
	return f.Err
}

// FakeResponder records every (runID, payload) pair it receives.
type FakeResponder struct {
	Err      error
	RunIDs   []string
	Payloads []map[string]interface{}
}

// Respond implements Responder.
func (f *FakeResponder) Respond(_ context.Context, runID string, payload map[string]interface{}) error {
	f.RunIDs = append(f.RunIDs, runID)
	f.Payloads = append(f.Payloads, payload)
	return f.Err
}
