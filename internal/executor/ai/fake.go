package ai

import "context"

// FakeBackend is a scripted Backend for tests: it returns Response (or
// Err, if set) for every call and records the requests it received.
type FakeBackend struct {
	Response Response
	Err      error

	Requests []Request
}

// Complete implements Backend.
func (f *FakeBackend) Complete(_ context.Context, req Request) (Response, error) {
	f.Requests = append(f.Requests, req)
	if f.Err != nil {
		return Response{}, f.Err
	}
	return f.Response, nil
}
