package maputil

import "fmt"

func GetKeyFromMap(obj map[string]any, key string, defaultValue any) any {
	if len(obj) == 0 {
		return defaultValue
	}

	val, isOk := obj[key]
	if !isOk {
		return defaultValue
	}

	return val
}

// GetTypeFromMap returns obj[key] asserted as [T].
func GetTypeFromMap[T any](obj map[string]any, key string) (T, error) {
	var zero T
	value, ok := obj[key]
	if !ok {
		return zero, fmt.Errorf("key: %q does not exist in object", key)
	}

	castedValue, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("expected key %q to be type %T, got %T", key, zero, value)
	}

	return castedValue, nil
}
