package service

import (
	"context"

	"github.com/noah-isme/course-admission-api/internal/models"
)

// CourseCatalogService reads course metadata through an optional cache.
// Capacity never passes through here; the ledger is the only source of seats.
type CourseCatalogService struct {
	directory courseInfoSource
	cache     *CacheService
}

// NewCourseCatalogService wraps directory with cache. cache may be nil.
func NewCourseCatalogService(directory courseInfoSource, cache *CacheService) *CourseCatalogService {
	return &CourseCatalogService{directory: directory, cache: cache}
}

// GetCourse returns cached metadata or loads it from the directory.
func (s *CourseCatalogService) GetCourse(ctx context.Context, courseID string) (*models.CourseInfo, error) {
	return Remember(ctx, s.cache, "course:"+courseID, func(ctx context.Context) (*models.CourseInfo, error) {
		return s.directory.GetCourse(ctx, courseID)
	})
}

