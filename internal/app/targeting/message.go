package targeting

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/PabloGalante/agent-dash/internal/domain"
)

// MessageElementSelected is the only message type the protocol defines.
const MessageElementSelected = "element-selected"

var ErrInvalidSelection = errors.New("invalid element selection")

type frameMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Decode parses a message posted by a rendered document. ok is false for
// message types the protocol does not define; those are not errors.
func Decode(raw []byte) (ref domain.ElementRef, ok bool, err error) {
	var msg frameMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return domain.ElementRef{}, false, fmt.Errorf("decode frame message: %w", err)
	}
	if msg.Type != MessageElementSelected {
		return domain.ElementRef{}, false, nil
	}
	if len(msg.Payload) == 0 {
		return domain.ElementRef{}, false, fmt.Errorf("%w: missing payload", ErrInvalidSelection)
	}
	if err := json.Unmarshal(msg.Payload, &ref); err != nil {
		return domain.ElementRef{}, false, fmt.Errorf("%w: %v", ErrInvalidSelection, err)
	}
	ref = Normalize(ref)
	if ref.Selector == "" {
		return domain.ElementRef{}, false, fmt.Errorf("%w: no selector or tag name", ErrInvalidSelection)
	}
	return ref, true, nil
}
