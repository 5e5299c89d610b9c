package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustplane/internal/assessment/models"
	id "trustplane/pkg/domain"
)

func TestKeys(t *testing.T) {
	userID := id.NewUserID()
	tenantID := id.NewTenantID()
	requestID := id.NewRequestID()

	resp := &models.AssessmentResponse{UserID: userID, TenantID: tenantID, RequestID: requestID}
	keys := Keys(resp)

	require.Len(t, keys, 2)
	assert.Equal(t, "assessment:"+userID.String()+":"+tenantID.String()+":"+requestID.String(), keys[0])
	assert.Equal(t, "assessment:"+requestID.String(), keys[1])
}

func TestMemory_SetGet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	resp := &models.AssessmentResponse{RequestID: id.NewRequestID(), Status: id.StatusCompleted}
	key := RequestKey(resp.RequestID)

	require.NoError(t, m.Set(ctx, key, resp, time.Minute))

	got, found, err := m.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, resp.RequestID, got.RequestID)

	_, found, err = m.Get(ctx, "assessment:missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemory_Expiry(t *testing.T) {
	m := NewMemory()
	now := time.Now()
	m.clock = func() time.Time { return now }
	ctx := context.Background()

	resp := &models.AssessmentResponse{RequestID: id.NewRequestID()}
	key := RequestKey(resp.RequestID)
	require.NoError(t, m.Set(ctx, key, resp, time.Minute))

	_, found, err := m.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, found, "not yet expired")

	now = now.Add(2 * time.Minute)
	_, found, err = m.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, found, "expired entry is invisible")
	assert.Zero(t, m.Len(), "expired entry removed on read")
}

func TestMemory_OverwriteRefreshesTTL(t *testing.T) {
	m := NewMemory()
	now := time.Now()
	m.clock = func() time.Time { return now }
	ctx := context.Background()

	resp := &models.AssessmentResponse{RequestID: id.NewRequestID()}
	key := RequestKey(resp.RequestID)

	require.NoError(t, m.Set(ctx, key, resp, time.Minute))
	now = now.Add(50 * time.Second)
	require.NoError(t, m.Set(ctx, key, resp, time.Minute))
	now = now.Add(30 * time.Second)

	_, found, err := m.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)
}
