package validator

import (
	"strings"
	"unicode/utf8"

	"checkout-engine/internal/domain/model"
)

// 列の長さ（migrationsと合わせる）
const (
	MaxCityLen           = 255
	MaxStreetLen         = 255
	MaxHouseNumberLen    = 50
	MaxIdempotencyKeyLen = 255
)

// 配送先を検証する。前後の空白を落とした値を返す
func ShippingAddress(addr model.ShippingAddress) (model.ShippingAddress, error) {
	addr = model.ShippingAddress{
		City:        strings.TrimSpace(addr.City),
		Street:      strings.TrimSpace(addr.Street),
		HouseNumber: strings.TrimSpace(addr.HouseNumber),
	}

	// 必須チェックと長さ（フィールド順に最初の1つだけ返す）
	fields := []struct {
		name  string
		value string
		max   int
	}{
		{"city", addr.City, MaxCityLen},
		{"street", addr.Street, MaxStreetLen},
		{"house_number", addr.HouseNumber, MaxHouseNumberLen},
	}
	for _, f := range fields {
		if f.value == "" {
			return addr, &model.ValidationError{Field: f.name, Reason: "required"}
		}
		if utf8.RuneCountInString(f.value) > f.max {
			return addr, &model.ValidationError{Field: f.name, Reason: "too long"}
		}
	}
	return addr, nil
}

// 冪等キーは任意。空なら""
func IdempotencyKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if len(key) > MaxIdempotencyKeyLen {
		return "", &model.ValidationError{Field: "idempotency_key", Reason: "too long"}
	}
	return key, nil
}

// ID系（user_id, product_id）
func PositiveID(field string, id int64) error {
	if id <= 0 {
		return &model.ValidationError{Field: field, Reason: "must be positive"}
	}
	return nil
}

// カートに入れる数量
func Quantity(qty int64) error {
	if qty < 1 {
		return &model.ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	return nil
}
