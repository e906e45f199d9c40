package ledger

import (
	"encoding/json"

	"gorm.io/datatypes"
)

// encodeMetadata folds the entry kind into caller metadata. Nil input yields an empty object.
func encodeMetadata(kind string, meta map[string]any) (datatypes.JSON, error) {
	out := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out["kind"] = kind

	b, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}
