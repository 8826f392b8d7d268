// Package storage persists ad groups, integration configuration and the
// per-asset integration status entries. Every backend writes the status of
// all assets of a recipe group in one atomic operation.
package storage

import (
	"context"
	"errors"

	"creative-dispatch/internal/creative"
)

var (
	ErrAdGroupNotFound     = errors.New("ad group not found")
	ErrIntegrationNotFound = errors.New("integration not found")
	ErrAssetNotFound       = errors.New("asset not found in ad group")
	// ErrGroupTooLarge is returned by backends that cannot write the group in one atomic operation.
	ErrGroupTooLarge = errors.New("recipe group exceeds the atomic write limit")
)

// Store is the document-store collaborator of the dispatcher.
type Store interface {
	LoadAdGroup(ctx context.Context, adGroupID string) (creative.AdGroup, error)
	LoadIntegration(ctx context.Context, integrationID string) (creative.Integration, error)
	// SetState replaces the integration entry of every listed asset, all or nothing.
	SetState(ctx context.Context, adGroupID string, integ creative.Integration, assetIDs []string, state string, fields creative.StatusFields) error
	Close()
}
