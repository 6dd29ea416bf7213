package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"ephemeral-chat/internal/media"
	"ephemeral-chat/internal/presence"
)

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

type MediaStoreMock struct {
	mock.Mock
}

func (m *MediaStoreMock) UploadURL(ctx context.Context, userID, fileName, contentType string) (media.Upload, error) {
	args := m.Called(ctx, userID, fileName, contentType)
	var up media.Upload
	if val := args.Get(0); val != nil {
		up = val.(media.Upload)
	}
	return up, args.Error(1)
}

func (m *MediaStoreMock) ReadURL(ctx context.Context, mediaRef string) (string, error) {
	args := m.Called(ctx, mediaRef)
	return args.String(0), args.Error(1)
}

func (m *MediaStoreMock) Owns(mediaRef, userID string) bool {
	args := m.Called(mediaRef, userID)
	return args.Bool(0)
}

type PresenceMock struct {
	mock.Mock
}

func (m *PresenceMock) Connect(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *PresenceMock) Refresh(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *PresenceMock) Disconnect(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *PresenceMock) Online(ctx context.Context, userIDs []string) (map[string]bool, error) {
	args := m.Called(ctx, userIDs)
	var out map[string]bool
	if val := args.Get(0); val != nil {
		out = val.(map[string]bool)
	}
	return out, args.Error(1)
}

func (m *PresenceMock) Close() error {
	return m.Called().Error(0)
}

var _ media.Store = (*MediaStoreMock)(nil)
var _ presence.Tracker = (*PresenceMock)(nil)
