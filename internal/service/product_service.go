package service

import (
	"context"

	"apteka/internal/domain"
	"apteka/internal/repository"
)

// ProductView товар вместе с производным статусом наличия
type ProductView struct {
	domain.Product
	StockStatus domain.StockStatus `json:"stock_status"`
}

// ProductService инкапсулирует бизнес-логику вокруг товаров аптеки
type ProductService struct {
	repo       repository.ProductRepository
	pharmacies repository.PharmacyRepository
	// lowStock граница low_stock; единственный источник правды — количество
	lowStock int64
}

func NewProductService(repo repository.ProductRepository, pharmacies repository.PharmacyRepository, lowStockThreshold int64) *ProductService {
	if lowStockThreshold <= 0 {
		lowStockThreshold = 10
	}
	return &ProductService{repo: repo, pharmacies: pharmacies, lowStock: lowStockThreshold}
}

func (s *ProductService) view(p domain.Product) ProductView {
	return ProductView{Product: p, StockStatus: domain.StockStatusFor(p.StockQuantity, s.lowStock)}
}

// Create товар создаёт только аптека и только у себя
func (s *ProductService) Create(ctx context.Context, actor domain.Actor, p domain.Product) (*ProductView, error) {
	if !actor.IsPharmacy() {
		return nil, ErrForbidden
	}
	if p.Name == "" || p.Price < 0 || p.StockQuantity < 0 {
		return nil, ErrInvalidInput
	}
	if _, err := s.pharmacies.GetByID(ctx, actor.ID); err != nil {
		return nil, err
	}
	p.PharmacyID = actor.ID
	if err := s.repo.Create(ctx, &p); err != nil {
		return nil, err
	}
	v := s.view(p)
	return &v, nil
}

func (s *ProductService) GetByID(ctx context.Context, id int64) (*ProductView, error) {
	if id <= 0 {
		return nil, ErrInvalidInput
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	v := s.view(*p)
	return &v, nil
}

func (s *ProductService) Update(ctx context.Context, actor domain.Actor, p domain.Product) (*ProductView, error) {
	if !actor.IsPharmacy() {
		return nil, ErrForbidden
	}
	if p.ID <= 0 || p.Name == "" || p.Price < 0 || p.StockQuantity < 0 {
		return nil, ErrInvalidInput
	}
	existing, err := s.repo.GetByID(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if existing.PharmacyID != actor.ID {
		return nil, ErrForbidden
	}
	p.PharmacyID = existing.PharmacyID
	p.CreatedAt = existing.CreatedAt
	if err := s.repo.Update(ctx, &p); err != nil {
		return nil, err
	}
	v := s.view(p)
	return &v, nil
}

func (s *ProductService) Delete(ctx context.Context, actor domain.Actor, id int64) error {
	if !actor.IsPharmacy() {
		return ErrForbidden
	}
	if id <= 0 {
		return ErrInvalidInput
	}
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing.PharmacyID != actor.ID {
		return ErrForbidden
	}
	return s.repo.Delete(ctx, id)
}

func (s *ProductService) List(ctx context.Context, f repository.ProductFilter) ([]ProductView, error) {
	list, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]ProductView, len(list))
	for i, p := range list {
		out[i] = s.view(p)
	}
	return out, nil
}
