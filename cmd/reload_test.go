package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/otus-tap/agent/internal/command"
)

type mockReloadClient struct {
	mock.Mock
}

func (m *mockReloadClient) Reload(ctx context.Context) (*command.Response, error) {
	args := m.Called(ctx)
	resp, _ := args.Get(0).(*command.Response)
	return resp, args.Error(1)
}

func TestRunReload_Success(t *testing.T) {
	client := new(mockReloadClient)
	client.On("Reload", mock.Anything).Return(&command.Response{ID: "1"}, nil)

	var buf bytes.Buffer
	err := runReload(context.Background(), client, &buf)

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "Configuration reloaded successfully")
	client.AssertExpectations(t)
}

func TestRunReload_TransportFailure(t *testing.T) {
	client := new(mockReloadClient)
	expectedErr := errors.New("connection failed")
	client.On("Reload", mock.Anything).Return(nil, expectedErr)

	var buf bytes.Buffer
	err := runReload(context.Background(), client, &buf)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "connection failed")
	assert.Empty(t, buf.String())
	client.AssertExpectations(t)
}

func TestRunReload_RPCError(t *testing.T) {
	client := new(mockReloadClient)
	client.On("Reload", mock.Anything).Return(&command.Response{
		ID:    "1",
		Error: &command.ErrorInfo{Code: command.ErrCodeInternal, Message: "reload not wired"},
	}, nil)

	var buf bytes.Buffer
	err := runReload(context.Background(), client, &buf)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "reload not wired")
	assert.Empty(t, buf.String())
	client.AssertExpectations(t)
}
