package mqtt

import (
	"encoding/json"

	"github.com/berfenger/mpp2mqtt/internal/core/domain"
	"github.com/berfenger/mpp2mqtt/pkg/mppsolar"
)

// CommandResponse is published on <base>/response/<CMD>.
type CommandResponse struct {
	CorrelationId string                       `json:"correlation_id"`
	Command       string                       `json:"command"`
	Fields        map[string]domain.FieldValue `json:"fields,omitempty"`
	Raw           string                       `json:"raw,omitempty"`
	Error         string                       `json:"error,omitempty"`
}

func NewCommandResponse(correlationId, command string, fields mppsolar.ResponseMap, raw string, err error) CommandResponse {
	resp := CommandResponse{
		CorrelationId: correlationId,
		Command:       command,
		Raw:           raw,
	}
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	if fields != nil {
		resp.Fields = make(map[string]domain.FieldValue, len(fields))
		for k, v := range fields {
			resp.Fields[k] = domain.FieldValue{Value: v.Value, Unit: v.Unit}
		}
	}
	return resp
}

func (r CommandResponse) Payload() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
