package sf

import "golang.org/x/sync/singleflight"

// Group is a typed singleflight group. The zero value is ready to use.
type Group[T any] struct {
	g singleflight.Group
}

func New[T any]() *Group[T] { return &Group[T]{} }

// Do runs fn for key unless a call for key is already in flight, in which
// case it waits and returns that call's result.
func (s *Group[T]) Do(key string, fn func() (T, error)) (T, error) {
	v, err, _ := s.g.Do(key, func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Forget makes the next Do for key run fn even if a call is in flight.
func (s *Group[T]) Forget(key string) { s.g.Forget(key) }
