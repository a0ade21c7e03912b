// Package vectorutils builds a vector.Driver from configuration.
package vectorutils

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"

	"github.com/papercomputeco/folio/pkg/vector"
	"github.com/papercomputeco/folio/pkg/vector/chroma"
	"github.com/papercomputeco/folio/pkg/vector/pgvector"
	"github.com/papercomputeco/folio/pkg/vector/qdrant"
	"github.com/papercomputeco/folio/pkg/vector/sqlitevec"
)

const (
	ProviderSQLiteVec = "sqlite"
	ProviderChroma    = "chroma"
	ProviderQdrant    = "qdrant"
	ProviderPgvector  = "pgvector"
)

type NewVectorDriverOpts struct {
	ProviderType string

	// TargetURL is the store address: a file path for sqlite, an HTTP URL
	// for chroma, host:port for qdrant and a DSN for pgvector.
	TargetURL  string
	Collection string
	APIKey     string
	Dimensions uint
	Logger     *slog.Logger
}

func NewVectorDriver(ctx context.Context, o *NewVectorDriverOpts) (vector.Driver, error) {
	switch o.ProviderType {
	case ProviderSQLiteVec, "":
		return sqlitevec.NewDriver(sqlitevec.Config{
			DBPath:     o.TargetURL,
			Dimensions: o.Dimensions,
		}, o.Logger)

	case ProviderChroma:
		return chroma.NewDriver(chroma.Config{
			URL:            o.TargetURL,
			CollectionName: o.Collection,
		}, o.Logger)

	case ProviderQdrant:
		host, port, useTLS, err := splitQdrantTarget(o.TargetURL)
		if err != nil {
			return nil, err
		}
		return qdrant.NewDriver(ctx, qdrant.Config{
			Host:           host,
			Port:           port,
			APIKey:         o.APIKey,
			UseTLS:         useTLS,
			CollectionName: o.Collection,
			Dimensions:     uint64(o.Dimensions),
		}, o.Logger)

	case ProviderPgvector:
		return pgvector.NewDriver(ctx, pgvector.Config{
			DSN:        o.TargetURL,
			Table:      o.Collection,
			Dimensions: o.Dimensions,
		}, o.Logger)

	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}

// splitQdrantTarget accepts "host", "host:port" or a URL such as
// "https://qdrant.example.com:6334".
func splitQdrantTarget(target string) (string, int, bool, error) {
	useTLS := false
	if u, err := url.Parse(target); err == nil && u.Host != "" {
		useTLS = u.Scheme == "https"
		target = u.Host
	}

	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return target, qdrant.DefaultPort, useTLS, nil
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, false, fmt.Errorf("invalid qdrant port %q: %w", portStr, err)
	}
	return host, port, useTLS, nil
}
