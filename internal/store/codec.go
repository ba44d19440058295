package store

import (
	"context"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Load decodes the object at key. A missing key returns (nil, nil). Within
// one session, loading the same key twice returns the same pointer until the
// key is written or the store is rolled back.
func Load[T any](ctx context.Context, s *Store, container, key string) (*T, error) {
	ck := cacheKey(container, key)
	if v, ok := s.cache.Get(ck); ok {
		if obj, ok := v.(*T); ok {
			return obj, nil
		}
	}

	data, err := s.Get(ctx, container, key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	obj := new(T)
	if err := json.Unmarshal(data, obj); err != nil {
		return nil, fmt.Errorf("decoding %s/%s: %w", container, key, err)
	}
	s.cache.Add(ck, obj)
	return obj, nil
}

// Save encodes obj and stages it at key. obj becomes the cached value of key.
func Save(s *Store, container, key string, obj any) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", container, key, err)
	}
	s.Put(container, key, data)
	s.cache.Add(cacheKey(container, key), obj)
	return nil
}

// LoadAll decodes every object in container in key order.
func LoadAll[T any](ctx context.Context, s *Store, container string) ([]*T, error) {
	keys, err := s.Keys(ctx, container)
	if err != nil {
		return nil, err
	}
	objs := make([]*T, 0, len(keys))
	for _, k := range keys {
		obj, err := Load[T](ctx, s, container, k)
		if err != nil {
			return nil, err
		}
		if obj != nil {
			objs = append(objs, obj)
		}
	}
	return objs, nil
}

// GetStrings decodes a string list value, as used by the path indices.
func GetStrings(ctx context.Context, s *Store, container, key string) ([]string, error) {
	data, err := s.Get(ctx, container, key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding %s/%s: %w", container, key, err)
	}
	return out, nil
}

// PutStrings stages a string list value; an empty list deletes the key.
func PutStrings(s *Store, container, key string, values []string) error {
	if len(values) == 0 {
		s.Delete(container, key)
		return nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", container, key, err)
	}
	s.Put(container, key, data)
	return nil
}
