// Package cache implements the assessment response cache over memory or
// redis.
package cache

import (
	"fmt"

	"trustplane/internal/assessment/models"
	id "trustplane/pkg/domain"
)

// ScopedKey is the cache key for one request within a user and tenant scope.
func ScopedKey(userID id.UserID, tenantID id.TenantID, requestID id.RequestID) string {
	return fmt.Sprintf("assessment:%s:%s:%s", userID, tenantID, requestID)
}

// RequestKey is the cache key for status lookups by request id alone.
func RequestKey(requestID id.RequestID) string {
	return fmt.Sprintf("assessment:%s", requestID)
}

// Keys returns both keys under which a response is stored.
func Keys(resp *models.AssessmentResponse) []string {
	return []string{
		ScopedKey(resp.UserID, resp.TenantID, resp.RequestID),
		RequestKey(resp.RequestID),
	}
}
