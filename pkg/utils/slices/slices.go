package slices

// apply mapper for each element in sli, and return slice of the results.
func Map[T any, R any](sli []T, mapper func(v T) R) []R {
	ret := make([]R, len(sli))
	for i, v := range sli {
		ret[i] = mapper(v)
	}
	return ret
}

// apply mapper for each element in sli.
//
// If mapper returns error, stop mapping and return the error.
func MapUntilError[T any, R any](sli []T, mapper func(v T) (R, error)) ([]R, error) {
	ret := make([]R, 0, len(sli))
	for _, v := range sli {
		r, err := mapper(v)
		if err != nil {
			return ret, err
		}
		ret = append(ret, r)
	}
	return ret, nil
}

// pick elements in vs which satisfy predicator.
func Filter[T any](vs []T, predicator func(T) bool) []T {
	filtered := []T{}
	for _, v := range vs {
		if predicator(v) {
			filtered = append(filtered, v)
		}
	}
	return filtered
}

// find the first element satisfying predicator.
//
// # Returns
//
// - T: found element (or zero-value of T)
//
// - bool: true when found
func First[T any](sli []T, predicator func(T) bool) (T, bool) {
	for _, v := range sli {
		if predicator(v) {
			return v, true
		}
	}
	return *new(T), false
}

// true when sli has at least one element equal to v.
func Contains[T comparable](sli []T, v T) bool {
	_, ok := First(sli, func(e T) bool { return e == v })
	return ok
}

// keys of map m, in no particular order.
func KeysOf[T any, K comparable](m map[K]T) []K {
	ret := make([]K, 0, len(m))
	for k := range m {
		ret = append(ret, k)
	}
	return ret
}
