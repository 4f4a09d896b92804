package service

import (
	"errors"
	"strconv"

	"github.com/onstechno/storefront/internal/domain"
	"github.com/onstechno/storefront/internal/repository"
	"github.com/shopspring/decimal"
)

func (s *IntegrationTestSuite) newProduct(name string) *domain.Product {
	return &domain.Product{
		Name:     name,
		Price:    decimal.RequireFromString("49.99"),
		Type:     domain.ProductTypeAccessory,
		IsActive: true,
		Stock:    10,
	}
}

func (s *IntegrationTestSuite) TestCreateProduct_AssignsSlug() {
	product := s.newProduct("Test Product")

	id, err := s.ProductService.Create(s.Ctx, product)
	s.Require().NoError(err)
	s.Require().NotZero(id)
	s.Require().Equal("test-product", product.Slug)
}

func (s *IntegrationTestSuite) TestCreateProduct_SlugCollisionGetsSuffix() {
	first := s.newProduct("Test Product")
	_, err := s.ProductService.Create(s.Ctx, first)
	s.Require().NoError(err)
	s.Require().Equal("test-product", first.Slug)

	second := s.newProduct("Test Product")
	_, err = s.ProductService.Create(s.Ctx, second)
	s.Require().NoError(err)
	s.Require().Equal("test-product-2", second.Slug)

	third := s.newProduct("Test Product")
	_, err = s.ProductService.Create(s.Ctx, third)
	s.Require().NoError(err)
	s.Require().Equal("test-product-3", third.Slug)
}

func (s *IntegrationTestSuite) TestCreateProduct_NameWithoutAlphanumerics() {
	first := s.newProduct("!!!")
	_, err := s.ProductService.Create(s.Ctx, first)
	s.Require().NoError(err)
	s.Require().Equal("product", first.Slug)

	// A second all-symbol name lands on the same fallback and gets a suffix.
	second := s.newProduct("???")
	_, err = s.ProductService.Create(s.Ctx, second)
	s.Require().NoError(err)
	s.Require().Equal("product-2", second.Slug)
}

func (s *IntegrationTestSuite) TestFindByIDOrSlug() {
	product := s.newProduct("Ergonomic Chair")
	id, err := s.ProductService.Create(s.Ctx, product)
	s.Require().NoError(err)

	bySlug, err := s.ProductService.FindByIDOrSlug(s.Ctx, "ergonomic-chair")
	s.Require().NoError(err)
	s.Require().Equal(id, bySlug.ID)

	byID, err := s.ProductService.FindByIDOrSlug(s.Ctx, strconv.FormatInt(id, 10))
	s.Require().NoError(err)
	s.Require().Equal("ergonomic-chair", byID.Slug)

	_, err = s.ProductService.FindByIDOrSlug(s.Ctx, "no-such-slug")
	s.Require().Error(err)
	s.Require().True(errors.Is(err, repository.ErrProductNotFound))
}

func (s *IntegrationTestSuite) TestListProducts_FiltersAndPagination() {
	for _, name := range []string{"Alpha Keyboard", "Beta Keyboard", "Gamma Mouse"} {
		_, err := s.ProductService.Create(s.Ctx, s.newProduct(name))
		s.Require().NoError(err)
	}

	soldOut := s.newProduct("Sold Out Pad")
	soldOut.Stock = 0
	_, err := s.ProductService.Create(s.Ctx, soldOut)
	s.Require().NoError(err)

	products, total, err := s.ProductService.List(s.Ctx, domain.ProductFilter{Search: "keyboard"})
	s.Require().NoError(err)
	s.Require().EqualValues(2, total)
	s.Require().Len(products, 2)

	products, total, err = s.ProductService.List(s.Ctx, domain.ProductFilter{InStockOnly: true})
	s.Require().NoError(err)
	s.Require().EqualValues(3, total)
	s.Require().Len(products, 3)

	products, total, err = s.ProductService.List(s.Ctx, domain.ProductFilter{Page: 1, PageSize: 2})
	s.Require().NoError(err)
	s.Require().EqualValues(4, total)
	s.Require().Len(products, 2)

	products, _, err = s.ProductService.List(s.Ctx, domain.ProductFilter{Page: 2, PageSize: 2})
	s.Require().NoError(err)
	s.Require().Len(products, 2)
}

func (s *IntegrationTestSuite) TestListProducts_SortByPrice() {
	cheap := s.newProduct("Cheap Thing")
	cheap.Price = decimal.RequireFromString("1.00")
	_, err := s.ProductService.Create(s.Ctx, cheap)
	s.Require().NoError(err)

	expensive := s.newProduct("Expensive Thing")
	expensive.Price = decimal.RequireFromString("999.00")
	_, err = s.ProductService.Create(s.Ctx, expensive)
	s.Require().NoError(err)

	products, _, err := s.ProductService.List(s.Ctx, domain.ProductFilter{
		SortBy:  "price",
		SortDir: domain.SortAsc,
	})
	s.Require().NoError(err)
	s.Require().Len(products, 2)
	s.Require().Equal("Cheap Thing", products[0].Name)

	products, _, err = s.ProductService.List(s.Ctx, domain.ProductFilter{
		SortBy: "price",
	})
	s.Require().NoError(err)
	s.Require().Equal("Expensive Thing", products[0].Name)
}

func (s *IntegrationTestSuite) TestUpdateProduct_RenameRecomputesSlug() {
	product := s.newProduct("Old Name")
	id, err := s.ProductService.Create(s.Ctx, product)
	s.Require().NoError(err)

	newName := "New Shiny Name"
	updated, err := s.ProductService.Update(s.Ctx, id, &domain.UpdateProductInput{
		Name: &newName,
	})
	s.Require().NoError(err)
	s.Require().Equal("New Shiny Name", updated.Name)
	s.Require().Equal("new-shiny-name", updated.Slug)
}

func (s *IntegrationTestSuite) TestUpdateProduct_RenameToTakenNameGetsSuffix() {
	taken := s.newProduct("First Thing")
	_, err := s.ProductService.Create(s.Ctx, taken)
	s.Require().NoError(err)

	other := s.newProduct("Second Thing")
	id, err := s.ProductService.Create(s.Ctx, other)
	s.Require().NoError(err)

	newName := "First Thing"
	updated, err := s.ProductService.Update(s.Ctx, id, &domain.UpdateProductInput{
		Name: &newName,
	})
	s.Require().NoError(err)
	s.Require().Equal("First Thing", updated.Name)
	s.Require().Equal("first-thing-2", updated.Slug)

	// The renamed product keeps its new slug on a no-op rename.
	updated, err = s.ProductService.Update(s.Ctx, id, &domain.UpdateProductInput{
		Name: &newName,
	})
	s.Require().NoError(err)
	s.Require().Equal("first-thing-2", updated.Slug)
}

func (s *IntegrationTestSuite) TestUpdateProduct_PartialFields() {
	product := s.newProduct("Stable Product")
	id, err := s.ProductService.Create(s.Ctx, product)
	s.Require().NoError(err)

	price := decimal.RequireFromString("79.99")
	stock := int64(42)
	updated, err := s.ProductService.Update(s.Ctx, id, &domain.UpdateProductInput{
		Price: &price,
		Stock: &stock,
	})
	s.Require().NoError(err)
	s.Require().True(updated.Price.Equal(price))
	s.Require().EqualValues(42, updated.Stock)
	// Untouched fields survive.
	s.Require().Equal("Stable Product", updated.Name)
	s.Require().Equal("stable-product", updated.Slug)
}

func (s *IntegrationTestSuite) TestUpdateProduct_NotFound() {
	newName := "Ghost"
	_, err := s.ProductService.Update(s.Ctx, 424242, &domain.UpdateProductInput{Name: &newName})

	s.Require().Error(err)
	s.Require().True(errors.Is(err, repository.ErrProductNotFound))
}

func (s *IntegrationTestSuite) TestDeactivateProduct() {
	product := s.newProduct("Retired Product")
	id, err := s.ProductService.Create(s.Ctx, product)
	s.Require().NoError(err)

	s.Require().NoError(s.ProductService.Deactivate(s.Ctx, id))

	found, err := s.ProductService.FindByID(s.Ctx, id)
	s.Require().NoError(err)
	s.Require().False(found.IsActive)

	// Deactivated products drop out of the default catalog listing.
	active := true
	products, total, err := s.ProductService.List(s.Ctx, domain.ProductFilter{Active: &active})
	s.Require().NoError(err)
	s.Require().Zero(total)
	s.Require().Empty(products)

	// And can no longer be ordered.
	_, orderErr := s.OrderService.PlaceOrder(s.Ctx, s.placeOrderInput(
		domain.CartLine{ProductID: id, Quantity: 1},
	))
	s.Require().Error(orderErr)
	s.Require().True(errors.Is(orderErr, repository.ErrProductNotFound))
}
