package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var tracer = otel.Tracer("baseline.vectorstore")

// QdrantConfig configures the Qdrant gRPC index.
type QdrantConfig struct {
	Host           string
	Port           int
	APIKey         string
	UseTLS         bool
	Timeout        time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
	MaxMessageSize int
}

// ApplyDefaults fills zero values.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = 200 * time.Millisecond
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
}

// Validate checks the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port out of range: %d", ErrInvalidConfig, c.Port)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// IsTransientError reports whether a gRPC error is worth retrying.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantIndex is an Index backed by Qdrant's native gRPC client.
type QdrantIndex struct {
	client *qdrant.Client
	config QdrantConfig
}

var _ Index = (*QdrantIndex)(nil)

// NewQdrantIndex connects to Qdrant. The connection is lazy; the first
// operation surfaces ErrStoreUnavailable if the server is down.
func NewQdrantIndex(config QdrantConfig) (*QdrantIndex, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &QdrantIndex{client: client, config: config}, nil
}

// Close closes the gRPC connection.
func (q *QdrantIndex) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}

// HealthCheck pings the server.
func (q *QdrantIndex) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, q.config.Timeout)
	defer cancel()
	if _, err := q.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// do runs op with a per-attempt timeout, retrying transient failures with
// exponential backoff. Exhausted transient failures map to ErrStoreUnavailable.
func (q *QdrantIndex) do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	backoff := q.config.RetryBackoff
	for attempt := 0; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, q.config.Timeout)
		err := op(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		if !IsTransientError(err) {
			return err
		}
		if attempt >= q.config.MaxRetries {
			return fmt.Errorf("%w: %s failed after %d attempts: %v", ErrStoreUnavailable, name, attempt+1, err)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s canceled: %v", ErrStoreUnavailable, name, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

func isNotFound(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == grpccodes.NotFound
}

// DescribeCollection returns the collection dimension and point count.
func (q *QdrantIndex) DescribeCollection(ctx context.Context, name string) (*CollectionInfo, error) {
	ctx, span := tracer.Start(ctx, "QdrantIndex.DescribeCollection")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name))

	var info *CollectionInfo
	err := q.do(ctx, "describe_collection", func(ctx context.Context) error {
		ci, err := q.client.GetCollectionInfo(ctx, name)
		if err != nil {
			if isNotFound(err) {
				return ErrCollectionNotFound
			}
			return err
		}
		info = &CollectionInfo{
			Name:      name,
			Dimension: int(ci.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()),
		}
		if ci.PointsCount != nil {
			info.PointCount = int(*ci.PointsCount)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrCollectionNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}
	span.SetStatus(codes.Ok, "success")
	return info, nil
}

// CreateCollection creates a cosine collection and keyword indexes on the
// requested payload fields.
func (q *QdrantIndex) CreateCollection(ctx context.Context, spec CollectionSpec) error {
	ctx, span := tracer.Start(ctx, "QdrantIndex.CreateCollection")
	defer span.End()
	span.SetAttributes(attribute.String("collection", spec.Name), attribute.Int("dimension", spec.Dimension))

	if err := ValidateCollectionName(spec.Name); err != nil {
		return err
	}
	if spec.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}

	err := q.do(ctx, "create_collection", func(ctx context.Context) error {
		return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: spec.Name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(spec.Dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
	})
	if err != nil {
		// A concurrent creator may have won; confirm before failing.
		if _, derr := q.DescribeCollection(ctx, spec.Name); derr == nil {
			return ErrCollectionExists
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating collection %s: %w", spec.Name, err)
	}

	for _, field := range spec.IndexedFields {
		field := field
		err := q.do(ctx, "create_field_index", func(ctx context.Context) error {
			_, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
				CollectionName: spec.Name,
				FieldName:      field,
				FieldType:      qdrant.PtrOf(qdrant.FieldType_FieldTypeKeyword),
				Wait:           qdrant.PtrOf(true),
			})
			return err
		})
		if err != nil {
			return fmt.Errorf("indexing field %s on %s: %w", field, spec.Name, err)
		}
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Upsert writes points and waits for them to be visible.
func (q *QdrantIndex) Upsert(ctx context.Context, collection string, points []Point) error {
	ctx, span := tracer.Start(ctx, "QdrantIndex.Upsert")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection), attribute.Int("count", len(points)))

	if len(points) == 0 {
		return nil
	}

	structs := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		id, err := toPointID(p.ID)
		if err != nil {
			return err
		}
		payload, err := qdrant.TryValueMap(p.Payload)
		if err != nil {
			return fmt.Errorf("converting payload for %s: %w", p.ID, err)
		}
		structs[i] = &qdrant.PointStruct{
			Id:      id,
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: payload,
		}
	}

	err := q.do(ctx, "upsert", func(ctx context.Context) error {
		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Wait:           qdrant.PtrOf(true),
			Points:         structs,
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return q.wrapCollectionErr(collection, "upsert", err)
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Get fetches one point by id.
func (q *QdrantIndex) Get(ctx context.Context, collection, id string) (*Point, error) {
	pid, err := toPointID(id)
	if err != nil {
		return nil, ErrPointNotFound
	}

	var found []*qdrant.RetrievedPoint
	err = q.do(ctx, "get", func(ctx context.Context) error {
		res, err := q.client.Get(ctx, &qdrant.GetPoints{
			CollectionName: collection,
			Ids:            []*qdrant.PointId{pid},
			WithPayload:    qdrant.NewWithPayload(true),
		})
		found = res
		return err
	})
	if err != nil {
		return nil, q.wrapCollectionErr(collection, "get", err)
	}
	if len(found) == 0 {
		return nil, ErrPointNotFound
	}
	return &Point{
		ID:      pointIDString(found[0].GetId()),
		Payload: fromValueMap(found[0].GetPayload()),
	}, nil
}

// Delete removes points by id. Ids that are not valid point ids cannot
// exist in the collection and are skipped.
func (q *QdrantIndex) Delete(ctx context.Context, collection string, ids []string) error {
	pids := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		if pid, err := toPointID(id); err == nil {
			pids = append(pids, pid)
		}
	}
	if len(pids) == 0 {
		return nil
	}
	err := q.do(ctx, "delete", func(ctx context.Context) error {
		_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: collection,
			Wait:           qdrant.PtrOf(true),
			Points:         qdrant.NewPointsSelector(pids...),
		})
		return err
	})
	if err != nil {
		return q.wrapCollectionErr(collection, "delete", err)
	}
	return nil
}

// DeleteByFilter removes every point matching filter.
func (q *QdrantIndex) DeleteByFilter(ctx context.Context, collection string, filter Filter) error {
	ctx, span := tracer.Start(ctx, "QdrantIndex.DeleteByFilter")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection))

	if filter.IsEmpty() {
		return ErrEmptyFilter
	}
	err := q.do(ctx, "delete_by_filter", func(ctx context.Context) error {
		_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: collection,
			Wait:           qdrant.PtrOf(true),
			Points:         qdrant.NewPointsSelectorFilter(toQdrantFilter(filter)),
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return q.wrapCollectionErr(collection, "delete_by_filter", err)
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Query runs a filtered nearest-neighbour search.
func (q *QdrantIndex) Query(ctx context.Context, collection string, vector []float32, filter Filter, k int) ([]ScoredPoint, error) {
	ctx, span := tracer.Start(ctx, "QdrantIndex.Query")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection), attribute.Int("k", k))

	if k <= 0 {
		return nil, nil
	}

	var hits []*qdrant.ScoredPoint
	err := q.do(ctx, "query", func(ctx context.Context) error {
		res, err := q.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: collection,
			Query:          qdrant.NewQuery(vector...),
			Filter:         toQdrantFilter(filter),
			Limit:          qdrant.PtrOf(uint64(k)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		hits = res
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, q.wrapCollectionErr(collection, "query", err)
	}

	out := make([]ScoredPoint, 0, len(hits))
	for _, h := range hits {
		out = append(out, ScoredPoint{
			ID:      pointIDString(h.GetId()),
			Score:   h.GetScore(),
			Payload: fromValueMap(h.GetPayload()),
		})
	}
	span.SetAttributes(attribute.Int("results", len(out)))
	span.SetStatus(codes.Ok, "success")
	return out, nil
}

// scrollPageSize is the batch size when Scroll pages through a collection.
const scrollPageSize = 256

// Scroll lists points matching filter without a query vector.
func (q *QdrantIndex) Scroll(ctx context.Context, collection string, filter Filter, limit int) ([]Point, error) {
	var (
		out    []Point
		offset *qdrant.PointId
	)
	for {
		page := scrollPageSize
		if limit > 0 {
			page = min(page, limit-len(out))
		}
		var (
			found []*qdrant.RetrievedPoint
			next  *qdrant.PointId
		)
		err := q.do(ctx, "scroll", func(ctx context.Context) error {
			res, nextOffset, err := q.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
				CollectionName: collection,
				Filter:         toQdrantFilter(filter),
				Offset:         offset,
				Limit:          qdrant.PtrOf(uint32(page)),
				WithPayload:    qdrant.NewWithPayload(true),
			})
			found, next = res, nextOffset
			return err
		})
		if err != nil {
			return nil, q.wrapCollectionErr(collection, "scroll", err)
		}
		for _, p := range found {
			out = append(out, Point{ID: pointIDString(p.GetId()), Payload: fromValueMap(p.GetPayload())})
		}
		if next == nil || len(found) == 0 || (limit > 0 && len(out) >= limit) {
			return out, nil
		}
		offset = next
	}
}

func (q *QdrantIndex) wrapCollectionErr(collection, op string, err error) error {
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	if isNotFound(err) {
		return fmt.Errorf("%s on %s: %w", op, collection, ErrCollectionNotFound)
	}
	return fmt.Errorf("%s on %s: %w", op, collection, err)
}

// toPointID accepts a UUID or an unsigned integer, the two id kinds Qdrant stores.
func toPointID(id string) (*qdrant.PointId, error) {
	if _, err := uuid.Parse(id); err == nil {
		return qdrant.NewIDUUID(id), nil
	}
	if n, err := strconv.ParseUint(id, 10, 64); err == nil {
		return qdrant.NewIDNum(n), nil
	}
	return nil, fmt.Errorf("invalid point id %q: must be a UUID or unsigned integer", id)
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return strconv.FormatUint(id.GetNum(), 10)
}

func toQdrantFilter(f Filter) *qdrant.Filter {
	if f.IsEmpty() {
		return nil
	}
	conds := make([]*qdrant.Condition, 0, len(f.Must))
	for _, c := range f.Must {
		if len(c.Values) == 1 {
			conds = append(conds, qdrant.NewMatch(c.Key, c.Values[0]))
			continue
		}
		conds = append(conds, qdrant.NewMatchKeywords(c.Key, c.Values...))
	}
	return &qdrant.Filter{Must: conds}
}

func fromValueMap(m map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = valueToAny(v)
	}
	return out
}

func valueToAny(v *qdrant.Value) any {
	if v == nil {
		return nil
	}
	switch k := v.GetKind().(type) {
	case *qdrant.Value_NullValue:
		return nil
	case *qdrant.Value_DoubleValue:
		return k.DoubleValue
	case *qdrant.Value_IntegerValue:
		return float64(k.IntegerValue)
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_BoolValue:
		return k.BoolValue
	case *qdrant.Value_StructValue:
		return fromValueMap(k.StructValue.GetFields())
	case *qdrant.Value_ListValue:
		items := k.ListValue.GetValues()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = valueToAny(item)
		}
		return out
	default:
		return nil
	}
}
