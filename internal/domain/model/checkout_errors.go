package model

import (
	"errors"
	"fmt"
)

// 入力不備（住所の空欄、空カートなど）。Txを開く前に返す
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

// 在庫不足。どの商品がいくつ足りないか
type InsufficientStockError struct {
	ProductID int64
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: product=%d requested=%d available=%d", e.ProductID, e.Requested, e.Available)
}

// DB起因の失敗。Transientならリトライで通る可能性がある（リトライするかは呼び出し側が決める）
type StorageError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *StorageError) Error() string {
	kind := "fatal"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("storage %s (%s): %v", e.Op, kind, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsInsufficientStock(err error) bool {
	var se *InsufficientStockError
	return errors.As(err, &se)
}

func IsTransient(err error) bool {
	var se *StorageError
	return errors.As(err, &se) && se.Transient
}
