package classify

// Origin records where a classification result came from.
type Origin string

const (
	OriginKeyword  Origin = "keyword"
	OriginProvider Origin = "provider"
	OriginDefault  Origin = "default"
)

// Outcome is a classification result that never fails. When the provider
// call or its parse failed, Value holds the documented default, Source is
// OriginDefault and Err keeps the cause for logging.
type Outcome[T any] struct {
	Value  T
	Source Origin
	Err    error
}

// Degraded reports whether the value is a fallback.
func (o Outcome[T]) Degraded() bool {
	return o.Source == OriginDefault
}

func fromKeyword[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v, Source: OriginKeyword}
}

func fromProvider[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v, Source: OriginProvider}
}

func fallback[T any](v T, err error) Outcome[T] {
	return Outcome[T]{Value: v, Source: OriginDefault, Err: err}
}
