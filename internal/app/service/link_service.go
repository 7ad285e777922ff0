package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/sifan077/PowerLink/internal/app/cache"
	"github.com/sifan077/PowerLink/internal/app/model"
	"github.com/sifan077/PowerLink/internal/app/repository"
	"github.com/sifan077/PowerLink/internal/app/shortcode"
	metrics "github.com/sifan077/PowerLink/internal/infra/prometheus"
	"go.uber.org/zap"
)

// LinkService defines behaviour-level operations on links.
type LinkService interface {
	CreateLink(ctx context.Context, ownerID uint64, input CreateLinkInput) (*model.Link, error)
	GetLink(ctx context.Context, ownerID, id uint64) (*model.Link, error)
	ListLinks(ctx context.Context, ownerID uint64) ([]model.Link, error)
	UpdateLink(ctx context.Context, ownerID, id uint64, input UpdateLinkInput) (*model.Link, error)
	DeleteLink(ctx context.Context, ownerID, id uint64) error
	// Resolve returns the link behind code and records a click without
	// waiting for it.
	Resolve(ctx context.Context, code string) (*model.Link, error)
}

// CodeGenerator produces candidate short codes. Results may be shorter than length.
type CodeGenerator interface {
	Generate(seed string, length int) string
}

// LinkOptions tunes code generation and caching.
type LinkOptions struct {
	DefaultCodeLength int
	MaxCodeLength     int
	MaxAttempts       int
	MaxInsertRetries  int
	CacheTTL          time.Duration
	Generator         CodeGenerator
}

// DefaultLinkOptions returns the production settings.
func DefaultLinkOptions() LinkOptions {
	return LinkOptions{
		DefaultCodeLength: 6,
		MaxCodeLength:     10,
		MaxAttempts:       5,
		MaxInsertRetries:  3,
		CacheTTL:          24 * time.Hour,
	}
}

func (o LinkOptions) withDefaults() LinkOptions {
	def := DefaultLinkOptions()
	if o.DefaultCodeLength <= 0 {
		o.DefaultCodeLength = def.DefaultCodeLength
	}
	if o.MaxCodeLength < o.DefaultCodeLength {
		o.MaxCodeLength = max(def.MaxCodeLength, o.DefaultCodeLength)
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = def.MaxAttempts
	}
	if o.MaxInsertRetries <= 0 {
		o.MaxInsertRetries = def.MaxInsertRetries
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = def.CacheTTL
	}
	if o.Generator == nil {
		o.Generator = shortcode.New()
	}
	return o
}

type linkService struct {
	repo   repository.LinkRepository
	cache  cache.Cache
	clicks ClickRecorder
	logger *zap.Logger
	opts   LinkOptions
}

// NewLinkService wires the store, the cache and the click recorder together.
// A nil cache disables caching; a nil recorder drops clicks.
func NewLinkService(repo repository.LinkRepository, c cache.Cache, clicks ClickRecorder, logger *zap.Logger, opts LinkOptions) LinkService {
	if c == nil {
		c = cache.Nop{}
	}
	if clicks == nil {
		clicks = discardClicks{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &linkService{
		repo:   repo,
		cache:  c,
		clicks: clicks,
		logger: logger,
		opts:   opts.withDefaults(),
	}
}

// CreateLinkInput captures data required to create a link.
type CreateLinkInput struct {
	OriginalURL  string
	CustomDomain string
}

// UpdateLinkInput captures fields that can be changed on an existing link.
// An empty CustomDomain clears it.
type UpdateLinkInput struct {
	OriginalURL  *string
	CustomDomain *string
}

func (s *linkService) CreateLink(ctx context.Context, ownerID uint64, input CreateLinkInput) (*model.Link, error) {
	if err := ValidateURL(input.OriginalURL); err != nil {
		return nil, err
	}
	var domain *string
	if input.CustomDomain != "" {
		if err := ValidateCustomDomain(input.CustomDomain); err != nil {
			return nil, err
		}
		d := strings.ToLower(input.CustomDomain)
		domain = &d
	}

	var link *model.Link
	for retry := 0; ; retry++ {
		seed := input.OriginalURL
		if retry > 0 {
			seed += "#" + strconv.Itoa(retry)
		}

		code, err := s.generateCode(ctx, seed)
		if err != nil {
			return nil, err
		}

		candidate := &model.Link{
			UserID:       ownerID,
			OriginalURL:  input.OriginalURL,
			ShortCode:    code,
			CustomDomain: domain,
		}
		err = s.repo.Create(ctx, candidate)
		if err == nil {
			link = candidate
			break
		}
		if !errors.Is(err, repository.ErrShortCodeTaken) {
			s.logger.Error("failed to persist link", zap.Uint64("owner_id", ownerID), zap.Error(err))
			return nil, storeError("create link", err)
		}

		metrics.CodeCollisions.WithLabelValues("insert").Inc()
		s.logger.Warn("short code lost insert race",
			zap.String("code", code),
			zap.Int("retry", retry),
		)
		if retry+1 >= s.opts.MaxInsertRetries {
			return nil, ErrCodeConflict
		}
	}

	metrics.LinksCreated.Inc()
	s.cacheSet(ctx, cache.ShortCodeKey(link.ShortCode), link)
	s.cacheSet(ctx, cache.LinkKey(ownerID, link.ID), link)
	s.cacheDelete(ctx, cache.LinkListKey(ownerID))

	s.logger.Info("link created",
		zap.Uint64("id", link.ID),
		zap.Uint64("owner_id", ownerID),
		zap.String("code", link.ShortCode),
	)
	return link, nil
}

// generateCode tries lengths from the default up to the maximum.
func (s *linkService) generateCode(ctx context.Context, seed string) (string, error) {
	for length := s.opts.DefaultCodeLength; length <= s.opts.MaxCodeLength; length++ {
		if length > s.opts.DefaultCodeLength {
			metrics.CodeLengthGrowth.Inc()
			s.logger.Debug("growing short code length", zap.Int("length", length))
		}

		code, err := s.tryGenerateUniqueCode(ctx, seed, length)
		if err != nil {
			return "", err
		}
		if code != "" {
			return code, nil
		}
	}

	s.logger.Error("short code space exhausted",
		zap.Int("max_length", s.opts.MaxCodeLength),
		zap.Int("attempts_per_length", s.opts.MaxAttempts),
	)
	return "", ErrCodeExhausted
}

// tryGenerateUniqueCode returns "" when every attempt at length was taken.
// The cache marker it leaves behind is advisory; the unique index decides.
func (s *linkService) tryGenerateUniqueCode(ctx context.Context, seed string, length int) (string, error) {
	for attempt := 0; attempt < s.opts.MaxAttempts; attempt++ {
		candidate := s.opts.Generator.Generate(seed+strconv.Itoa(attempt), length)
		if len(candidate) != length || !shortcode.Valid(candidate) {
			metrics.CodeCollisions.WithLabelValues("short").Inc()
			continue
		}

		key := cache.ShortCodeKey(candidate)
		if _, ok := s.cacheGet(ctx, key); ok {
			metrics.CodeCollisions.WithLabelValues("cache").Inc()
			continue
		}

		exists, err := s.repo.CodeExists(ctx, candidate, false)
		if err != nil {
			s.logger.Error("failed to check short code", zap.String("code", candidate), zap.Error(err))
			return "", storeError("check short code", err)
		}
		s.cacheSet(ctx, key, true)
		if exists {
			metrics.CodeCollisions.WithLabelValues("store").Inc()
			continue
		}
		return candidate, nil
	}
	return "", nil
}

func (s *linkService) GetLink(ctx context.Context, ownerID, id uint64) (*model.Link, error) {
	key := cache.LinkKey(ownerID, id)
	if raw, ok := s.cacheGet(ctx, key); ok {
		if link := decodeLink(raw); link != nil && link.ID == id && link.UserID == ownerID {
			return link, nil
		}
	}

	link, err := s.repo.GetByID(ctx, id, &ownerID)
	if err != nil {
		return nil, s.mapStoreErr("get link", err)
	}

	s.cacheSet(ctx, key, link)
	return link, nil
}

func (s *linkService) ListLinks(ctx context.Context, ownerID uint64) ([]model.Link, error) {
	key := cache.LinkListKey(ownerID)
	if raw, ok := s.cacheGet(ctx, key); ok {
		var links []model.Link
		if err := json.Unmarshal(raw, &links); err == nil && links != nil {
			return links, nil
		}
	}

	links, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, s.mapStoreErr("list links", err)
	}

	s.cacheSet(ctx, key, links)
	return links, nil
}

func (s *linkService) UpdateLink(ctx context.Context, ownerID, id uint64, input UpdateLinkInput) (*model.Link, error) {
	upd := repository.LinkUpdate{OriginalURL: input.OriginalURL}
	if input.OriginalURL != nil {
		if err := ValidateURL(*input.OriginalURL); err != nil {
			return nil, err
		}
	}
	if input.CustomDomain != nil {
		d := strings.ToLower(*input.CustomDomain)
		if d != "" {
			if err := ValidateCustomDomain(d); err != nil {
				return nil, err
			}
		}
		upd.CustomDomain = &d
	}

	link, err := s.repo.Update(ctx, id, ownerID, upd)
	if err != nil {
		return nil, s.mapStoreErr("update link", err)
	}

	s.cacheSet(ctx, cache.LinkKey(ownerID, id), link)
	s.cacheDelete(ctx, cache.LinkListKey(ownerID))
	if !upd.Empty() {
		// The code is unchanged, but a cached record under it would keep
		// redirecting to the old target.
		s.cacheSet(ctx, cache.ShortCodeKey(link.ShortCode), link)
	}
	return link, nil
}

func (s *linkService) DeleteLink(ctx context.Context, ownerID, id uint64) error {
	deleted, err := s.repo.Delete(ctx, id, ownerID)
	if err != nil {
		return s.mapStoreErr("delete link", err)
	}

	s.cacheDelete(ctx, cache.LinkKey(ownerID, id))
	s.cacheDelete(ctx, cache.ShortCodeKey(deleted.ShortCode))
	s.cacheDelete(ctx, cache.LinkListKey(ownerID))

	s.logger.Info("link deleted", zap.Uint64("id", id), zap.Uint64("owner_id", ownerID))
	return nil
}

func (s *linkService) Resolve(ctx context.Context, code string) (*model.Link, error) {
	if len(code) > s.opts.MaxCodeLength || !shortcode.Valid(code) {
		metrics.Redirects.WithLabelValues("not_found").Inc()
		return nil, ErrNotFound
	}

	key := cache.ShortCodeKey(code)
	var link *model.Link
	if raw, ok := s.cacheGet(ctx, key); ok {
		// A reservation marker decodes to nil and falls through to the store.
		link = decodeLink(raw)
	}

	source := "cache"
	if link == nil {
		source = "store"
		stored, err := s.repo.GetByCode(ctx, code)
		if err != nil {
			if errors.Is(err, repository.ErrLinkNotFound) {
				metrics.Redirects.WithLabelValues("not_found").Inc()
			}
			return nil, s.mapStoreErr("resolve link", err)
		}
		link = stored
		s.cacheSet(ctx, key, link)
	}

	if err := ValidateURL(link.OriginalURL); err != nil {
		metrics.Redirects.WithLabelValues("unsafe").Inc()
		s.logger.Warn("refusing to redirect to invalid target",
			zap.String("code", code),
			zap.String("target", link.OriginalURL),
		)
		return nil, ErrUnsafeTarget
	}

	metrics.Redirects.WithLabelValues(source).Inc()
	s.clicks.Record(ctx, link)
	return link, nil
}

func (s *linkService) mapStoreErr(op string, err error) error {
	if errors.Is(err, repository.ErrLinkNotFound) {
		return ErrNotFound
	}
	s.logger.Error("link store failure", zap.String("op", op), zap.Error(err))
	return storeError(op, err)
}

// decodeLink returns nil for anything that is not a persisted Link.
func decodeLink(raw []byte) *model.Link {
	var link model.Link
	if err := json.Unmarshal(raw, &link); err != nil || link.ID == 0 {
		return nil
	}
	return &link
}

func (s *linkService) cacheGet(ctx context.Context, key string) ([]byte, bool) {
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("cache get failed, falling back to store", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return raw, ok
}

func (s *linkService) cacheSet(ctx context.Context, key string, value any) {
	if err := s.cache.Set(ctx, key, value, s.opts.CacheTTL); err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *linkService) cacheDelete(ctx context.Context, key string) {
	if err := s.cache.Delete(ctx, key); err != nil {
		s.logger.Warn("cache delete failed", zap.String("key", key), zap.Error(err))
	}
}
