package integration

import "context"

// FakeResolver returns a fixed Account for every integration type, or
// Err if set.
type FakeResolver struct {
	Account Account
	Err     error
}

// Resolve implements AccountResolver.
func (f *FakeResolver) Resolve(_ context.Context, _ string) (Account, error) {
	if f.Err != nil {
		return Account{}, f.Err
	}
	return f.Account, nil
}

// FakeConnector is a scripted Connector for tests.
type FakeConnector struct {
	Result interface{}
	Err    error

	LastOperation string
	LastParams    map[string]interface{}
	CallCount     int
}

// Call implements Connector.
func (f *FakeConnector) Call(_ context.Context, _ Account, operation string, params map[string]interface{}) (interface{}, error) {
	f.CallCount++
	f.LastOperation = operation
	f.LastParams = params
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Result, nil
}
