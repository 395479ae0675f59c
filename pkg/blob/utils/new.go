// Package blobutils builds blob stores from configuration.
package blobutils

import (
	"context"
	"fmt"

	"github.com/papercomputeco/threads/pkg/blob"
	"github.com/papercomputeco/threads/pkg/blob/gcs"
	"github.com/papercomputeco/threads/pkg/blob/local"
)

type NewStoreOpts struct {
	ProviderType string
	LocalDir     string
	BaseURL      string
	GCSBucket    string
}

func NewStore(ctx context.Context, o *NewStoreOpts) (blob.Store, error) {
	switch o.ProviderType {
	case "", "local":
		return local.New(o.LocalDir, o.BaseURL)
	case "gcs":
		return gcs.New(ctx, o.GCSBucket)
	default:
		return nil, fmt.Errorf("unsupported blob provider: %s", o.ProviderType)
	}
}
