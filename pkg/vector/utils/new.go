package vectorutils

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/threads/pkg/vector"
	"github.com/papercomputeco/threads/pkg/vector/hnsw"
	"github.com/papercomputeco/threads/pkg/vector/qdrant"
	"github.com/papercomputeco/threads/pkg/vector/sqlitevec"
)

type NewVectorDriverOpts struct {
	ProviderType string

	// Target is a database path for sqlite and host:port for qdrant.
	Target     string
	APIKey     string
	Collection string
	Dimensions uint
	Logger     *slog.Logger
}

func NewVectorDriver(ctx context.Context, o *NewVectorDriverOpts) (vector.Driver, error) {
	switch o.ProviderType {
	case "sqlite":
		return sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{
			DBPath:     o.Target,
			Dimensions: o.Dimensions,
		}, o.Logger)
	case "qdrant":
		return qdrant.NewDriver(ctx, qdrant.Config{
			Target:         o.Target,
			APIKey:         o.APIKey,
			CollectionName: o.Collection,
			Dimensions:     o.Dimensions,
		}, o.Logger)
	case "memory":
		return hnsw.New(o.Dimensions, o.Logger), nil
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}
