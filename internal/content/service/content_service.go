package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/umanagarjuna/go-content-cache/internal/content/cache"
	"github.com/umanagarjuna/go-content-cache/internal/content/domain"
	"github.com/umanagarjuna/go-content-cache/pkg/validator"
)

const (
	// DefaultTTL is one week.
	DefaultTTL = 168 * time.Hour

	translatePathRoute = "/router/translate-path?path="

	targetResolvedRoute = "resolved route"
	targetPayload       = "payload"
)

type ContentService struct {
	client    domain.JSONGetter
	cache     *cache.RedisCache
	validator validator.PathValidator
	publisher domain.EventPublisher
	logger    *zap.Logger
	ttl       time.Duration
}

type Config struct {
	TTL time.Duration
}

func NewContentService(
	client domain.JSONGetter,
	cache *cache.RedisCache,
	validator validator.PathValidator,
	publisher domain.EventPublisher,
	logger *zap.Logger,
	config Config,
) *ContentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := config.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}

	return &ContentService{
		client:    client,
		cache:     cache,
		validator: validator,
		publisher: publisher,
		logger:    logger,
		ttl:       ttl,
	}
}

// ResolveExternalEndpoint translates a site path into its canonical
// endpoint, /prefix/type/bundle/uuid.
func (s *ContentService) ResolveExternalEndpoint(ctx context.Context,
	path string) (string, error) {

	if err := s.validator.ValidatePath(path); err != nil {
		return "", domain.Validation("path", err.Error())
	}

	key := translatePathRoute + path

	document, err := s.remember(ctx, key)
	if err != nil {
		return "", err
	}

	var route domain.ResolvedRoute
	if err := decodeDocument(document, &route); err != nil {
		return "", domain.Decode(targetResolvedRoute, err)
	}
	if err := route.Validate(); err != nil {
		return "", domain.Decode(targetResolvedRoute, err)
	}

	return route.Endpoint(), nil
}

// GetExternalData fetches endpoint through the cache and decodes it into T.
// Decode errors name the dotted path of the offending field.
func GetExternalData[T any](ctx context.Context, s *ContentService,
	endpoint string) (T, error) {

	var data T

	if err := s.validator.ValidateEndpoint(endpoint); err != nil {
		return data, domain.Validation("endpoint", err.Error())
	}

	document, err := s.remember(ctx, endpoint)
	if err != nil {
		return data, err
	}

	if err := decodeDocument(document, &data); err != nil {
		return data, domain.Decode(targetPayload, err)
	}

	return data, nil
}

// GetContent resolves a site path and returns the document behind it.
func (s *ContentService) GetContent(ctx context.Context,
	path string) (map[string]any, error) {

	endpoint, err := s.ResolveExternalEndpoint(ctx, path)
	if err != nil {
		return nil, err
	}

	return GetExternalData[map[string]any](ctx, s, endpoint)
}

// PurgeCache flushes every cached route and payload.
func (s *ContentService) PurgeCache(ctx context.Context, source string) error {
	if err := s.cache.ClearAll(ctx); err != nil {
		return err
	}

	if s.publisher == nil {
		return nil
	}

	event := &domain.CachePurgedEvent{
		Source:    source,
		Timestamp: time.Now().UTC(),
	}
	if err := s.publisher.PublishCachePurged(ctx, event); err != nil {
		s.logger.Error("Failed to publish cache purged event",
			zap.Error(err), zap.String("source", source))
	}

	return nil
}

// CheckHealth reports whether the upstream API is reachable.
func (s *ContentService) CheckHealth(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// remember fetches key through the cache. Store failures are returned
// even when the upstream document was fetched.
func (s *ContentService) remember(ctx context.Context, key string) (any, error) {
	return cache.Remember(ctx, s.cache, key, s.ttl,
		func(ctx context.Context) (any, error) {
			return s.client.GetJSON(ctx, key)
		})
}

// decodeDocument re-reads a generic JSON document into result with
// encoding/json rules. Type mismatches name the dotted field path.
func decodeDocument(document any, result any) error {
	raw, err := json.Marshal(document)
	if err != nil {
		return err
	}

	err = json.Unmarshal(raw, result)

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return fmt.Errorf("%s: cannot use %s as %s", typeErr.Field,
			typeErr.Value, typeErr.Type)
	}
	return err
}
