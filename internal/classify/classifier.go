package classify

import (
	"context"
	"sync"

	"github.com/ayusman/spotter/internal/pose"
)

// Classifier runs the external posture model on one feature vector and
// returns its probability vector in ModelLabels order.
type Classifier interface {
	Classify(ctx context.Context, features pose.Features) ([]float64, error)

	// Close releases any resources held by the classifier.
	Close() error
}

// MockClassifier is a test implementation of the Classifier interface.
// It allows tests to control the classification results.
type MockClassifier struct {
	mu    sync.Mutex
	probs []float64
	err   error
	calls int
	last  pose.Features
}

// NewMockClassifier creates a new MockClassifier instance.
func NewMockClassifier() *MockClassifier {
	return &MockClassifier{}
}

// SetProbabilities sets the vector returned by Classify.
func (m *MockClassifier) SetProbabilities(probs ...float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probs = probs
}

// SetError sets the error that will be returned by Classify.
func (m *MockClassifier) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Classify returns the pre-configured probabilities or error.
func (m *MockClassifier) Classify(ctx context.Context, features pose.Features) ([]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	m.last = features
	if m.err != nil {
		return nil, m.err
	}
	return append([]float64(nil), m.probs...), nil
}

// Calls returns how many times Classify ran.
func (m *MockClassifier) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastFeatures returns the most recent input vector.
func (m *MockClassifier) LastFeatures() pose.Features {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Close is a no-op for the mock classifier.
func (m *MockClassifier) Close() error {
	return nil
}
