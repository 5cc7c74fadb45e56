package conversation

import (
	"context"
	"sync"
)

// stubLLMClient replays scripted responses and errors in call order. The last
// response repeats once the script runs out.
type stubLLMClient struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     int
	requests  []LLMRequest
}

func (s *stubLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls
	s.calls++
	s.requests = append(s.requests, req)

	if idx < len(s.errs) && s.errs[idx] != nil {
		return LLMResponse{}, s.errs[idx]
	}
	if len(s.responses) == 0 {
		return LLMResponse{}, nil
	}
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	return LLMResponse{Text: s.responses[idx]}, nil
}

func (s *stubLLMClient) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubLLMClient) lastRequest() LLMRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return LLMRequest{}
	}
	return s.requests[len(s.requests)-1]
}

// push appends one scripted response, used between turns of a scenario.
func (s *stubLLMClient) push(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.responses) < s.calls {
		s.responses = append(s.responses, "")
	}
	s.responses = append(s.responses, text)
}
