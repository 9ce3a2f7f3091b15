package sales

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

// Ограничения на входные данные.
const (
	MaxQuantityPerItem   = 20
	MaxSaleNumberLength  = 50
	MaxNameLength        = 100
	MaxCancelReasonChars = 500
)

// Тексты нарушений, которые уходят клиенту.
const (
	msgSaleIDRequired       = "Sale ID is required"
	msgItemIDRequired       = "Item ID is required"
	msgItemIDDuplicate      = "Item ID must be unique within the sale"
	msgSaleNumberRequired   = "Sale number is required"
	msgSaleDateRequired     = "Sale date is required"
	msgCustomerRequired     = "Customer is required"
	msgBranchRequired       = "Branch is required"
	msgItemsRequired        = "Sale items are required"
	msgProductIDRequired    = "Product ID is required"
	msgProductNameRequired  = "Product name is required"
	msgQuantityPositive     = "Quantity must be greater than zero"
	msgQuantityTooLarge     = "Quantity cannot be greater than 20"
	msgUnitPricePositive    = "Unit price must be greater than zero"
	msgDiscountNegative     = "Discount cannot be negative"
	msgDiscountTooLarge     = "Discount cannot be greater than 100%"
	msgPagePositive         = "Page must be greater than zero"
	msgPageSizeRange        = "Page size must be between 1 and 100"
	msgDateRange            = "Start date must be less than or equal to end date"
	msgCancelReasonRequired = "Cancellation reason is required"
	msgCancelReasonTooLong  = "Cancellation reason must have a maximum of 500 characters"
	msgSaleNumberTooLong    = "Sale number must have a maximum of 50 characters"
	msgCustomerTooLong      = "Customer must have a maximum of 100 characters"
	msgBranchTooLong        = "Branch must have a maximum of 100 characters"
	msgProductNameTooLong   = "Product name must have a maximum of 100 characters"
)

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func tooLong(s string, limit int) bool {
	return utf8.RuneCountInString(s) > limit
}

func itemField(i int, name string) string {
	return fmt.Sprintf("items[%d].%s", i, name)
}

// validateCreate проверяет запрос на создание до обращения к хранилищу.
func validateCreate(cmd CreateSaleCommand) error {
	verr := &domain.ValidationError{}

	switch {
	case blank(cmd.SaleNumber):
		verr.Add("saleNumber", msgSaleNumberRequired)
	case tooLong(cmd.SaleNumber, MaxSaleNumberLength):
		verr.Add("saleNumber", msgSaleNumberTooLong)
	}
	if cmd.Date.IsZero() {
		verr.Add("date", msgSaleDateRequired)
	}
	validateParty(verr, cmd.Customer, cmd.Branch)
	if len(cmd.Items) == 0 {
		verr.Add("items", msgItemsRequired)
	}

	for i, item := range cmd.Items {
		if blank(item.ProductID) {
			verr.Add(itemField(i, "productId"), msgProductIDRequired)
		}
		switch {
		case blank(item.ProductName):
			verr.Add(itemField(i, "productName"), msgProductNameRequired)
		case tooLong(item.ProductName, MaxNameLength):
			verr.Add(itemField(i, "productName"), msgProductNameTooLong)
		}
		switch {
		case item.Quantity <= 0:
			verr.Add(itemField(i, "quantity"), msgQuantityPositive)
		case item.Quantity > MaxQuantityPerItem:
			verr.Add(itemField(i, "quantity"), msgQuantityTooLarge)
		}
		if !item.UnitPrice.IsPositive() {
			verr.Add(itemField(i, "unitPrice"), msgUnitPricePositive)
		}
	}
	return verr.Err()
}

// validateUpdate мягче создания: верхней границы количества нет,
// зато проверяются переданная клиентом скидка и уникальность ID позиций.
func validateUpdate(cmd UpdateSaleCommand) error {
	verr := &domain.ValidationError{}

	if blank(cmd.ID) {
		verr.Add("id", msgSaleIDRequired)
	}
	validateParty(verr, cmd.Customer, cmd.Branch)
	if len(cmd.Items) == 0 {
		verr.Add("items", msgItemsRequired)
	}

	seen := make(map[string]bool, len(cmd.Items))
	for i, item := range cmd.Items {
		if id := strings.TrimSpace(item.ID); id != "" {
			if seen[id] {
				verr.Add(itemField(i, "id"), msgItemIDDuplicate)
			}
			seen[id] = true
		}
		if blank(item.ProductID) {
			verr.Add(itemField(i, "productId"), msgProductIDRequired)
		}
		if tooLong(item.ProductName, MaxNameLength) {
			verr.Add(itemField(i, "productName"), msgProductNameTooLong)
		}
		if item.Quantity <= 0 {
			verr.Add(itemField(i, "quantity"), msgQuantityPositive)
		}
		if !item.UnitPrice.IsPositive() {
			verr.Add(itemField(i, "unitPrice"), msgUnitPricePositive)
		}
		switch {
		case item.Discount.IsNegative():
			verr.Add(itemField(i, "discount"), msgDiscountNegative)
		case item.Discount.GreaterThan(decimal.NewFromInt(1)):
			verr.Add(itemField(i, "discount"), msgDiscountTooLarge)
		}
	}
	return verr.Err()
}

func validateParty(verr *domain.ValidationError, customer, branch string) {
	switch {
	case blank(customer):
		verr.Add("customer", msgCustomerRequired)
	case tooLong(customer, MaxNameLength):
		verr.Add("customer", msgCustomerTooLong)
	}
	switch {
	case blank(branch):
		verr.Add("branch", msgBranchRequired)
	case tooLong(branch, MaxNameLength):
		verr.Add("branch", msgBranchTooLong)
	}
}

func validateSaleID(id string) error {
	if blank(id) {
		verr := &domain.ValidationError{}
		verr.Add("id", msgSaleIDRequired)
		return verr
	}
	return nil
}

func validateCancel(cmd CancelSaleCommand) error {
	verr := &domain.ValidationError{}
	if blank(cmd.ID) {
		verr.Add("id", msgSaleIDRequired)
	}
	switch {
	case blank(cmd.Reason):
		verr.Add("cancellationReason", msgCancelReasonRequired)
	case tooLong(cmd.Reason, MaxCancelReasonChars):
		verr.Add("cancellationReason", msgCancelReasonTooLong)
	}
	return verr.Err()
}

func validateCancelItem(cmd CancelItemCommand) error {
	verr := &domain.ValidationError{}
	if blank(cmd.SaleID) {
		verr.Add("saleId", msgSaleIDRequired)
	}
	if blank(cmd.ItemID) {
		verr.Add("itemId", msgItemIDRequired)
	}
	return verr.Err()
}

// ValidateListFilter проверяет параметры страницы и диапазон дат.
func ValidateListFilter(filter domain.ListFilter) error {
	verr := &domain.ValidationError{}
	if filter.Page <= 0 {
		verr.Add("page", msgPagePositive)
	}
	if filter.PageSize < 1 || filter.PageSize > domain.MaxPageSize {
		verr.Add("pageSize", msgPageSizeRange)
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.StartDate.After(*filter.EndDate) {
		verr.Add("startDate", msgDateRange)
	}
	return verr.Err()
}
