package strategy

import "fmt"

// paramFloat extrae un número de los params, con default si falta.
// YAML/JSON decodifican números como float64 o int según la fuente.
func paramFloat(params map[string]any, key string, def float64) (float64, error) {
	v, ok := params[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("param %q: expected number, got %T", key, v)
}

// paramInt extrae un entero de los params, con default si falta.
func paramInt(params map[string]any, key string, def int) (int, error) {
	f, err := paramFloat(params, key, float64(def))
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

// checkKnownKeys rechaza params con claves que la estrategia no conoce.
// Un typo en la config debe ser fatal en el arranque, no ignorado.
func checkKnownKeys(params map[string]any, known ...string) error {
	for k := range params {
		found := false
		for _, kk := range known {
			if k == kk {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("unknown param %q (known: %v)", k, known)
		}
	}
	return nil
}
