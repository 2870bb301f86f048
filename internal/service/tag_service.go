package service

import (
	"context"

	"zola/internal/cache"
	"zola/internal/models"
	"zola/internal/repository"
	"zola/internal/validation"
)

// TagService resolves tag names to rows and serves the most-common lists.
type TagService struct {
	repo repository.TagRepository
}

func NewTagService(repo repository.TagRepository) *TagService {
	return &TagService{repo: repo}
}

// Resolve returns a tag row for every name, creating missing ones.
func (s *TagService) Resolve(ctx context.Context, names []string) ([]models.Tag, error) {
	tags := make([]models.Tag, 0, len(names))
	for _, name := range names {
		slug := validation.Slugify(name)
		if slug == "" {
			slug = "tag"
		}
		tag, err := s.repo.GetOrCreate(ctx, name, slug)
		if err != nil {
			return nil, err
		}
		tags = append(tags, *tag)
	}
	return tags, nil
}

// ResolveField parses a serialized tag list and resolves it. field names the
// input the list came from, for error reporting.
func (s *TagService) ResolveField(ctx context.Context, field, raw string) ([]models.Tag, error) {
	names, err := validation.ParseTags(raw)
	if err != nil {
		return nil, models.NewFieldError(field, capitalize(err.Error())+".")
	}
	return s.Resolve(ctx, names)
}

// MostCommon lists the tags used in domain whose name contains name, most
// used first. Results are cached for cache.TagsTTL.
func (s *TagService) MostCommon(ctx context.Context, domain repository.TagDomain, name string) ([]models.TagUsage, error) {
	key := cache.BookTagsKey(name)
	if domain == repository.TagDomainUsers {
		key = cache.UserTagsKey(name)
	}

	return cache.Load(ctx, key, cache.TagsTTL, func(ctx context.Context) ([]models.TagUsage, error) {
		usages, _, err := s.repo.MostCommon(ctx, domain, name, repository.Page{})
		return usages, err
	})
}

// GetByID returns a tag with its usage counts.
func (s *TagService) GetByID(ctx context.Context, id uint) (*models.TagUsage, error) {
	return s.repo.GetByID(ctx, id)
}

// CountUsage returns how many users and books carry the tag.
func (s *TagService) CountUsage(ctx context.Context, tagID uint) (users, books int64, err error) {
	return s.repo.CountUsage(ctx, tagID)
}

// Invalidate drops the cached lists of domain after its tags changed.
func (s *TagService) Invalidate(ctx context.Context, domain repository.TagDomain) {
	if domain == repository.TagDomainUsers {
		cache.InvalidateUserTags(ctx)
		return
	}
	cache.InvalidateBookTags(ctx)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	if r[0] >= 'a' && r[0] <= 'z' {
		r[0] -= 'a' - 'A'
	}
	return string(r)
}
