package internal

import "strconv"

// Flatten lowers a decoded JSON object into a single-level map with dotted
// keys, so `{"repository": {"full_name": "acme/site"}}` becomes
// `{"repository.full_name": "acme/site"}`. Arrays are kept whole under both
// the bare key and key[], and each element is additionally flattened under
// key[i]. Rule expressions address these keys in bracket-escaped form.
func Flatten(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	for key, value := range data {
		flattenValue(out, key, value)
	}
	return out
}

func flattenValue(out map[string]interface{}, path string, value interface{}) {
	switch typed := value.(type) {
	case map[string]interface{}:
		for key, child := range typed {
			flattenValue(out, path+"."+key, child)
		}
	case []interface{}:
		out[path] = typed
		out[path+"[]"] = typed
		for i, child := range typed {
			flattenValue(out, path+"["+strconv.Itoa(i)+"]", child)
		}
	default:
		out[path] = value
	}
}
