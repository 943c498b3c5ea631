// Package caster converts values to and from the payloads sent over live
// feeds.
package caster

import (
	"encoding/json"
	"errors"
)

// ErrOneWay is returned by casters that can only encode.
var ErrOneWay = errors.New("caster: format cannot be decoded")

type ChannelCaster[T any] interface {
	From([]byte) (T, error)
	To(T) ([]byte, error)
}

type JSONChannelCaster[T any] struct{}

func (jc JSONChannelCaster[T]) From(data []byte) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}

func (jc JSONChannelCaster[T]) To(v T) ([]byte, error) {
	return json.Marshal(v)
}

// TextChannelCaster encodes with a formatting function. It cannot decode.
type TextChannelCaster[T any] struct {
	Format func(T) string
}

func (tc TextChannelCaster[T]) From([]byte) (T, error) {
	var v T
	return v, ErrOneWay
}

func (tc TextChannelCaster[T]) To(v T) ([]byte, error) {
	return []byte(tc.Format(v)), nil
}
