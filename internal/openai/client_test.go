package openai

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/obsidian/internal/domain"
	"github.com/cloo-solutions/obsidian/internal/embedding"
)

// MockOpenAIAPI is a mock for the OpenAI API
type MockOpenAIAPI struct {
	mock.Mock
}

func (m *MockOpenAIAPI) CreateEmbeddings(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockOpenAIAPI) CreateChatCompletion(ctx context.Context, system, user string) (string, error) {
	args := m.Called(ctx, system, user)
	return args.String(0), args.Error(1)
}

var _ embedding.Embedder = (*Client)(nil)

func TestClient_Embed_Success(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := newClient(mockAPI, 1536, 0)

	ctx := context.Background()
	text := "Quarterly revenue grew by twelve percent."
	expected := make([]float32, 1536)
	for i := range expected {
		expected[i] = float32(i) * 0.001
	}

	mockAPI.On("CreateEmbeddings", ctx, text).Return(expected, nil)

	vec, err := client.Embed(ctx, text)

	assert.NoError(t, err)
	assert.Equal(t, expected, vec)
	assert.Equal(t, 1536, client.Dimension())
	assert.Equal(t, embedding.MetricCosine, client.Metric())
	mockAPI.AssertExpectations(t)
}

func TestClient_Embed_EmptyText(t *testing.T) {
	client := newClient(new(MockOpenAIAPI), 0, 0)

	vec, err := client.Embed(context.Background(), "")

	assert.Nil(t, vec)
	assert.True(t, domain.HasCode(err, domain.ErrCodeEmbedding))
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestClient_Embed_UpstreamFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"rate limited", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "rate limit exceeded"}},
		{"service unavailable", &openai.APIError{HTTPStatusCode: http.StatusServiceUnavailable, Message: "overloaded"}},
		{"transport", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockAPI := new(MockOpenAIAPI)
			client := newClient(mockAPI, 1536, 0)

			ctx := context.Background()
			mockAPI.On("CreateEmbeddings", ctx, "Test text").Return(nil, tt.err).Once()

			vec, err := client.Embed(ctx, "Test text")

			assert.Nil(t, vec)
			assert.True(t, domain.HasCode(err, domain.ErrCodeEmbedderDown))
			assert.False(t, domain.HasCode(err, domain.ErrCodeEmbedding))
			assert.ErrorIs(t, err, tt.err)
			assert.Contains(t, err.Error(), "failed to create embedding")
			mockAPI.AssertExpectations(t)
		})
	}
}

func TestClient_Embed_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"upstream 503","type":"server_error"}}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL, EmbeddingDimensions: 3})
	require.NoError(t, err)

	_, err = client.Embed(context.Background(), "pump inspection")
	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.ErrCodeEmbedderDown))

	var apiErr *openai.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.HTTPStatusCode)
}

func TestClient_Embed_WrongDimensions(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := newClient(mockAPI, 1536, 0)

	ctx := context.Background()
	mockAPI.On("CreateEmbeddings", ctx, "Test text").Return(make([]float32, 512), nil)

	vec, err := client.Embed(ctx, "Test text")

	assert.Nil(t, vec)
	assert.ErrorIs(t, err, ErrWrongDimensions)
	assert.True(t, domain.HasCode(err, domain.ErrCodeEmbedding))
	mockAPI.AssertExpectations(t)
}

func TestClient_Embed_CanceledWhileRateLimited(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := newClient(mockAPI, 3, 0.001)

	ctx := context.Background()
	mockAPI.On("CreateEmbeddings", ctx, "first").Return([]float32{1, 2, 3}, nil).Once()
	_, err := client.Embed(ctx, "first")
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = client.Embed(waitCtx, "second")
	assert.Error(t, err)
	assert.False(t, domain.HasCode(err, domain.ErrCodeEmbedding))
	mockAPI.AssertExpectations(t)
}

func TestClient_Generate(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := newClient(mockAPI, 0, 0)

	ctx := context.Background()
	mockAPI.On("CreateChatCompletion", ctx, systemPrompt, "Context:\n[1] revenue grew\n\nQuestion: how did revenue change?").
		Return("Revenue grew [1].", nil).Once()

	answer, err := client.Generate(ctx, "how did revenue change?", "[1] revenue grew", nil)

	require.NoError(t, err)
	assert.Equal(t, "Revenue grew [1].", answer)
	mockAPI.AssertExpectations(t)
}

func TestClient_Generate_Error(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := newClient(mockAPI, 0, 0)

	mockAPI.On("CreateChatCompletion", mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.New("model overloaded")).Once()

	_, err := client.Generate(context.Background(), "q", "[1] c", nil)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to generate answer")
}

func TestNewClient(t *testing.T) {
	client, err := NewClient(Config{APIKey: "test-api-key"})
	require.NoError(t, err)
	assert.NotNil(t, client.api)
	assert.Equal(t, DefaultEmbeddingDimensions, client.Dimension())

	client, err = NewClient(Config{})
	assert.Nil(t, client)
	assert.Equal(t, ErrNoAPIKey, err)
}
