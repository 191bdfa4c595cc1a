package runtime

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// DecodePayload unmarshals the run payload into out.
func (c *Context) DecodePayload(out any) error {
	if c == nil || c.Run == nil {
		return errors.New("no workflow run")
	}
	if len(c.Run.Payload) == 0 {
		return errors.New("empty payload")
	}
	return json.Unmarshal(c.Run.Payload, out)
}

// PayloadUUID reads a top-level uuid field. Missing, malformed and nil ids
// all report false.
func (c *Context) PayloadUUID(key string) (uuid.UUID, bool) {
	var fields map[string]any
	if err := c.DecodePayload(&fields); err != nil {
		return uuid.Nil, false
	}
	v, ok := fields[key]
	if !ok || v == nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(fmt.Sprint(v))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}
