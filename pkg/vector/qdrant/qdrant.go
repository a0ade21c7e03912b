// Package qdrant provides a Qdrant chunk store driver over the gRPC API.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/papercomputeco/folio/pkg/vector"
)

const (
	// DefaultCollectionName is the default collection for page chunks.
	DefaultCollectionName = "folio"

	// DefaultPort is Qdrant's gRPC port.
	DefaultPort = 6334
)

// pointNamespace derives stable point UUIDs from chunk ids, since Qdrant
// only accepts integers or UUIDs as point ids.
var pointNamespace = uuid.MustParse("6f1c2d1e-8a4b-4c55-9d0e-2b7f3a9c4e61")

// Config holds configuration for the Qdrant driver.
type Config struct {
	Host           string
	Port           int
	APIKey         string
	UseTLS         bool
	CollectionName string

	// Dimensions is used when the collection has to be created.
	Dimensions uint64
}

// Driver implements vector.Driver using the official Qdrant client.
type Driver struct {
	client     *qdrant.Client
	collection string
	logger     *slog.Logger
}

// NewDriver connects to Qdrant and creates the collection (cosine distance)
// when it does not exist yet.
func NewDriver(ctx context.Context, c Config, logger *slog.Logger) (*Driver, error) {
	if c.Host == "" {
		return nil, errors.New("qdrant host is required")
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.CollectionName == "" {
		c.CollectionName = DefaultCollectionName
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   c.Host,
		Port:   c.Port,
		APIKey: c.APIKey,
		UseTLS: c.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: creating qdrant client: %w", vector.ErrConnection, err)
	}

	exists, err := client.CollectionExists(ctx, c.CollectionName)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: checking collection %q: %w", vector.ErrConnection, c.CollectionName, err)
	}

	if !exists {
		if c.Dimensions == 0 {
			client.Close()
			return nil, fmt.Errorf("qdrant collection %q does not exist and dimensions are not configured", c.CollectionName)
		}
		err = client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: c.CollectionName,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     c.Dimensions,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("creating collection %q: %w", c.CollectionName, err)
		}
		logger.Info("created qdrant collection", "collection", c.CollectionName, "dimensions", c.Dimensions)
	}

	logger.Info("connected to Qdrant", "host", c.Host, "port", c.Port, "collection", c.CollectionName)

	return &Driver{
		client:     client,
		collection: c.CollectionName,
		logger:     logger,
	}, nil
}

// Add upserts chunks as points keyed by a UUID derived from the chunk id.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(docs))
	for i, doc := range docs {
		points[i] = &qdrant.PointStruct{
			Id:      pointID(doc.ID),
			Vectors: qdrant.NewVectors(doc.Embedding...),
			Payload: qdrant.NewValueMap(toPayload(doc)),
		}
	}

	wait := true
	if _, err := d.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: d.collection,
		Wait:           &wait,
		Points:         points,
	}); err != nil {
		return classify("upsert", err)
	}

	d.logger.Debug("added chunks to qdrant", "count", len(docs))

	return nil
}

// Query finds the topK most similar chunks. Qdrant reports cosine
// similarity directly, so the score is passed through.
func (d *Driver) Query(ctx context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive, got %d", vector.ErrInvalidRequest, topK)
	}

	points, err := d.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: d.collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, classify("query", err)
	}

	results := make([]vector.QueryResult, 0, len(points))
	for _, p := range points {
		results = append(results, vector.QueryResult{
			Document: fromPayload(p.GetPayload()),
			Score:    p.GetScore(),
		})
	}

	d.logger.Debug("queried qdrant", "results", len(results))

	return results, nil
}

// Get retrieves chunks by their ids.
func (d *Driver) Get(ctx context.Context, ids []string) ([]vector.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = pointID(id)
	}

	points, err := d.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: d.collection,
		Ids:            pointIDs,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, classify("get", err)
	}

	docs := make([]vector.Document, 0, len(points))
	for _, p := range points {
		doc := fromPayload(p.GetPayload())
		doc.Embedding = p.GetVectors().GetVector().GetData()
		docs = append(docs, doc)
	}
	return docs, nil
}

// Delete removes chunks by their ids.
func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = pointID(id)
	}

	wait := true
	if _, err := d.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: d.collection,
		Wait:           &wait,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	}); err != nil {
		return classify("delete", err)
	}

	d.logger.Debug("deleted chunks from qdrant", "count", len(ids))

	return nil
}

// Ping runs the Qdrant health check.
func (d *Driver) Ping(ctx context.Context) error {
	if _, err := d.client.HealthCheck(ctx); err != nil {
		return classify("health check", err)
	}
	return nil
}

// Close releases the gRPC connection.
func (d *Driver) Close() error {
	return d.client.Close()
}

func pointID(chunkID string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(pointNamespace, []byte(chunkID)).String())
}

func toPayload(doc vector.Document) map[string]any {
	payload := make(map[string]any, len(doc.Metadata)+5)
	for k, v := range doc.Metadata {
		payload[k] = v
	}
	payload[vector.MetaChunkID] = doc.ID
	payload[vector.MetaDocumentName] = doc.DocumentName
	payload[vector.MetaPageNumber] = int64(doc.PageNumber)
	payload["content"] = doc.Content
	if doc.ImageURL != "" {
		payload[vector.MetaImageURL] = doc.ImageURL
	}
	return payload
}

func fromPayload(payload map[string]*qdrant.Value) vector.Document {
	var doc vector.Document
	for k, v := range payload {
		switch k {
		case vector.MetaChunkID:
			doc.ID = v.GetStringValue()
		case vector.MetaDocumentName:
			doc.DocumentName = v.GetStringValue()
		case vector.MetaPageNumber:
			doc.PageNumber = int(v.GetIntegerValue())
		case vector.MetaImageURL:
			doc.ImageURL = v.GetStringValue()
		case "content":
			doc.Content = v.GetStringValue()
		default:
			if doc.Metadata == nil {
				doc.Metadata = make(map[string]string)
			}
			doc.Metadata[k] = v.GetStringValue()
		}
	}
	return doc
}

// classify maps gRPC status codes onto the vector error sentinels.
func classify(op string, err error) error {
	switch status.Code(err) {
	case codes.InvalidArgument, codes.NotFound, codes.FailedPrecondition, codes.OutOfRange:
		return fmt.Errorf("%w: qdrant %s: %w", vector.ErrInvalidRequest, op, err)
	default:
		return fmt.Errorf("%w: qdrant %s: %w", vector.ErrConnection, op, err)
	}
}
