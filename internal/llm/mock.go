package llm

import "context"

// MockBackend is a test double that returns a canned response.
type MockBackend struct {
	Text string
	Err  error
}

func (m *MockBackend) Name() string { return "mock" }

func (m *MockBackend) Chat(_ context.Context, _ Request) (Response, error) {
	if m.Err != nil {
		return Response{}, m.Err
	}
	return Response{Text: m.Text}, nil
}
