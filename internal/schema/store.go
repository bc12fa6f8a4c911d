package schema

import (
	"context"
	"encoding/json"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// DefaultConnection names the connection used when none is given.
const DefaultConnection = "default"

// Cache outcomes reported to a CacheObserver.
const (
	CacheHit           = "hit"
	CacheMiss          = "miss"
	CachePersistentHit = "persistent_hit"
)

// CacheObserver receives schema cache outcomes.
type CacheObserver interface {
	ObserveSchemaCache(model, outcome string)
}

type nopObserver struct{}

func (nopObserver) ObserveSchemaCache(string, string) {}

// Store loads, validates, normalizes and caches schemas. It is safe for
// concurrent use. Two goroutines missing on the same key may both load the
// schema; the cache only ever holds fully normalized values.
type Store struct {
	locator    Locator
	namespace  string
	logger     *zap.Logger
	observer   CacheObserver
	persistent PersistentCache
	ttl        time.Duration
	validator  *structureValidator
	now        func() time.Time

	mu    sync.RWMutex
	cache map[string]*Schema
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(s *Store) { s.logger = l } }

// WithObserver sets the cache observer.
func WithObserver(o CacheObserver) Option { return func(s *Store) { s.observer = o } }

// WithPersistentCache adds a second cache tier. ttl <= 0 keeps entries
// until they are cleared.
func WithPersistentCache(c PersistentCache, ttl time.Duration) Option {
	return func(s *Store) {
		s.persistent = c
		s.ttl = ttl
	}
}

// NewStore creates a Store reading schemas for namespace through locator.
func NewStore(locator Locator, namespace string, opts ...Option) (*Store, error) {
	validator, err := newStructureValidator()
	if err != nil {
		return nil, err
	}
	s := &Store{
		locator:   locator,
		namespace: namespace,
		logger:    zap.NewNop(),
		observer:  nopObserver{},
		validator: validator,
		now:       time.Now,
		cache:     make(map[string]*Schema),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Namespace returns the namespace schemas are read from.
func (s *Store) Namespace() string { return s.namespace }

// CacheKey returns the cache key for a model and connection.
func CacheKey(model, connection string) string {
	if connection == "" {
		connection = DefaultConnection
	}
	return model + "@" + connection
}

// GetSchema returns the normalized schema for model, looking in the
// connection-scoped location first when connection is set.
func (s *Store) GetSchema(ctx context.Context, model, connection string) (*Schema, error) {
	if !ValidName(model) || (connection != "" && !ValidName(connection)) {
		return nil, errors.Wrapf(ErrSchemaNotFound, "model %q", model)
	}
	key := CacheKey(model, connection)

	s.mu.RLock()
	cached, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		s.observer.ObserveSchemaCache(model, CacheHit)
		return cached, nil
	}

	if schema, ok := s.fromPersistent(key, model); ok {
		s.observer.ObserveSchemaCache(model, CachePersistentHit)
		s.publish(key, schema)
		return schema, nil
	}

	s.observer.ObserveSchemaCache(model, CacheMiss)
	schema, source, err := s.Load(ctx, model, connection)
	if err != nil {
		return nil, err
	}
	s.publish(key, schema)
	s.toPersistent(key, source, schema)
	return schema, nil
}

// Load reads and normalizes a schema without touching the cache. It returns
// the URI the schema was read from.
func (s *Store) Load(ctx context.Context, model, connection string) (*Schema, string, error) {
	uris := CandidateURIs(s.namespace, connection, model)
	for i, uri := range uris {
		data, err := s.locator.Read(ctx, uri)
		if err != nil {
			if errors.Is(err, ErrResourceNotFound) {
				continue
			}
			return nil, "", errors.Wrapf(err, "load schema %s", model)
		}
		schema, err := s.build(data, model)
		if err != nil {
			return nil, "", errors.Wrapf(err, "%s", uri)
		}
		scoped := len(uris) > 1 && i == 0
		if scoped && schema.Connection == "" {
			schema.Connection = connection
		}
		if err := stamp(schema); err != nil {
			return nil, "", err
		}
		s.logger.Debug("schema loaded", zap.String("model", model), zap.String("uri", uri))
		return schema, uri, nil
	}
	return nil, "", errors.Wrapf(ErrSchemaNotFound, "model %q", model)
}

// Parse validates and normalizes a schema document whose model must equal
// model.
func (s *Store) Parse(data []byte, model string) (*Schema, error) {
	schema, err := s.build(data, model)
	if err != nil {
		return nil, err
	}
	return schema, stamp(schema)
}

func (s *Store) build(data []byte, model string) (*Schema, error) {
	if err := s.validator.Validate(data); err != nil {
		return nil, err
	}
	raw, err := ParseRaw(data)
	if err != nil {
		return nil, errors.Mark(err, ErrSchemaInvalid)
	}
	if model != "" && raw.Model() != model {
		return nil, errors.Wrapf(ErrSchemaInvalid, "declares model %q, expected %q", raw.Model(), model)
	}
	schema := Normalize(raw)
	for _, issue := range schema.Issues() {
		if issue.Fatal {
			return nil, errors.Wrapf(ErrInvalidRelationship, "model %s: %s", raw.Model(), issue)
		}
		s.logger.Warn("schema attribute dropped",
			zap.String("model", raw.Model()),
			zap.String("path", issue.Path),
			zap.String("reason", issue.Reason))
	}
	return schema, nil
}

// stamp computes the content hash of the normalized schema.
func stamp(schema *Schema) error {
	encoded, err := json.Marshal(schema)
	if err != nil {
		return errors.Wrap(err, "encode schema")
	}
	schema.etag = strconv.FormatUint(xxhash.Sum64(encoded), 16)
	return nil
}

func (s *Store) publish(key string, schema *Schema) {
	s.mu.Lock()
	s.cache[key] = schema
	s.mu.Unlock()
}

func (s *Store) fromPersistent(key, model string) (*Schema, bool) {
	if s.persistent == nil {
		return nil, false
	}
	data, found, err := s.persistent.Get(persistentPrefix + key)
	if err != nil {
		s.logger.Warn("persistent schema cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !found {
		return nil, false
	}
	env, err := decodeEnvelope(data)
	if err != nil || env.Model != model {
		s.logger.Warn("discarding persistent schema cache entry", zap.String("key", key), zap.Error(err))
		_ = s.persistent.Delete(persistentPrefix + key)
		return nil, false
	}
	raw, err := ParseRaw(env.Payload)
	if err != nil {
		_ = s.persistent.Delete(persistentPrefix + key)
		return nil, false
	}
	schema := Normalize(raw)
	schema.etag = env.Hash
	return schema, true
}

func (s *Store) toPersistent(key, source string, schema *Schema) {
	if s.persistent == nil {
		return
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		s.logger.Warn("encode schema for persistent cache failed", zap.String("key", key), zap.Error(err))
		return
	}
	data, err := encodeEnvelope(envelope{
		Model:      schema.Model,
		Connection: schema.Connection,
		Source:     source,
		Hash:       schema.etag,
		StoredAt:   s.now().UTC(),
		Payload:    payload,
	})
	if err == nil {
		err = s.persistent.Set(persistentPrefix+key, data, s.ttl)
	}
	if err != nil {
		s.logger.Warn("persistent schema cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// ClearCache drops the cached schema for one model and connection from both
// tiers. An empty connection means the default connection only; use
// ClearModel to drop every connection of a model.
func (s *Store) ClearCache(model, connection string) {
	key := CacheKey(model, connection)
	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()
	if s.persistent != nil {
		if err := s.persistent.Delete(persistentPrefix + key); err != nil {
			s.logger.Warn("persistent schema cache delete failed", zap.String("key", key), zap.Error(err))
		}
	}
}

// ClearModel drops the cached schemas of model for every connection from
// both tiers and returns the in-memory keys it removed.
func (s *Store) ClearModel(model string) []string {
	prefix := model + "@"
	var removed []string
	s.mu.Lock()
	for key := range s.cache {
		if strings.HasPrefix(key, prefix) {
			delete(s.cache, key)
			removed = append(removed, key)
		}
	}
	s.mu.Unlock()
	slices.Sort(removed)
	if s.persistent != nil {
		if err := s.persistent.DeletePrefix(persistentPrefix + prefix); err != nil {
			s.logger.Warn("persistent schema cache delete failed", zap.String("model", model), zap.Error(err))
		}
	}
	return removed
}

// ClearAll drops every cached schema from both tiers.
func (s *Store) ClearAll() {
	s.mu.Lock()
	s.cache = make(map[string]*Schema)
	s.mu.Unlock()
	if s.persistent != nil {
		if err := s.persistent.DeletePrefix(persistentPrefix); err != nil {
			s.logger.Warn("persistent schema cache clear failed", zap.Error(err))
		}
	}
}

// Cached reports whether a schema is in the in-memory tier.
func (s *Store) Cached(model, connection string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.cache[CacheKey(model, connection)]
	return ok
}
