package services

import (
	"context"
	"sync"
	"time"

	"khata/internal/cache"
	"khata/internal/core"
	"khata/internal/storage"
)

const (
	catalogueKey = "all"
	catalogueTTL = 5 * time.Minute
)

// ProductTypeService serves the product type catalogue. List results are
// cached until the next write. A list read that overlaps a write is returned
// but not cached.
type ProductTypeService struct {
	repo      *storage.Repository
	catalogue *cache.LRUCache[[]core.ProductType]

	mu  sync.Mutex
	gen uint64
}

func NewProductTypeService(repo *storage.Repository) *ProductTypeService {
	return &ProductTypeService{
		repo:      repo,
		catalogue: cache.NewLRUCache[[]core.ProductType](1, catalogueTTL),
	}
}

func (s *ProductTypeService) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// remember caches types read at generation gen unless a write has committed
// since.
func (s *ProductTypeService) remember(gen uint64, types []core.ProductType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen {
		s.catalogue.Set(catalogueKey, types)
	}
}

func (s *ProductTypeService) invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.catalogue.Purge()
}

// Cache exposes the catalogue cache so it can be swept periodically.
func (s *ProductTypeService) Cache() cache.Cleaner {
	return s.catalogue
}

func (s *ProductTypeService) Create(ctx context.Context, in core.ProductTypeInput) (core.ProductType, error) {
	if err := validateInput(&in); err != nil {
		return core.ProductType{}, err
	}
	var pt core.ProductType
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		var err error
		pt, err = q.CreateProductType(ctx, in)
		return err
	})
	if err == nil {
		s.invalidate()
	}
	return pt, err
}

func (s *ProductTypeService) Get(ctx context.Context, id int64) (core.ProductType, error) {
	var pt core.ProductType
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		var err error
		pt, err = q.GetProductType(ctx, id)
		return err
	})
	return pt, err
}

func (s *ProductTypeService) List(ctx context.Context) ([]core.ProductType, error) {
	if types, ok := s.catalogue.Get(catalogueKey); ok {
		return append([]core.ProductType(nil), types...), nil
	}
	gen := s.generation()
	var types []core.ProductType
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		var err error
		types, err = q.ListProductTypes(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.remember(gen, types)
	return append([]core.ProductType(nil), types...), nil
}

func (s *ProductTypeService) Update(ctx context.Context, id int64, in core.ProductTypeInput) (core.ProductType, error) {
	if err := validateInput(&in); err != nil {
		return core.ProductType{}, err
	}
	var pt core.ProductType
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		var err error
		pt, err = q.UpdateProductType(ctx, id, in)
		return err
	})
	if err == nil {
		s.invalidate()
	}
	return pt, err
}

func (s *ProductTypeService) Delete(ctx context.Context, id int64) error {
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		return q.DeleteProductType(ctx, id)
	})
	if err == nil {
		s.invalidate()
	}
	return err
}
