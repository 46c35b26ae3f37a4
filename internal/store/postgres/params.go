package postgres

import (
	"encoding/json"

	"github.com/sithhades/regime-classifier/internal/model"
)

func marshalParameters(p model.ModelParameters) ([]byte, error) {
	return json.Marshal(p)
}

func unmarshalParameters(data []byte, out *model.ModelParameters) error {
	return json.Unmarshal(data, out)
}
