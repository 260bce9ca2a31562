package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingType reports an envelope without a type field.
var ErrMissingType = errors.New("message has no type")

// NewMessage creates a message with a JSON-encoded payload.
func NewMessage(msgType MessageType, payload any) (*Message, error) {
	var data json.RawMessage
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", msgType, err)
		}
	}
	return &Message{Type: msgType, Data: data}, nil
}

// MustNewMessage creates a message, panicking on encode failure. Only for
// payload types the server itself constructs.
func MustNewMessage(msgType MessageType, payload any) *Message {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		panic(err)
	}
	return msg
}

// Encode serializes the message to its wire form.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses an inbound envelope. A syntactically valid JSON object
// without a type is still rejected.
func Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Type == "" {
		return nil, ErrMissingType
	}
	return &msg, nil
}

// ParsePayload decodes a message's Data into the given payload type.
func ParsePayload[T any](msg *Message) (*T, error) {
	var payload T
	if len(msg.Data) == 0 {
		return &payload, nil
	}
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", msg.Type, err)
	}
	return &payload, nil
}

// NewErrorMessage creates an error message with the code's default text.
func NewErrorMessage(code int) *Message {
	return NewErrorMessageWithText(code, ErrorMessages[code])
}

// NewErrorMessageWithText creates an error message with custom text.
func NewErrorMessageWithText(code int, text string) *Message {
	msg, _ := NewMessage(MsgError, ErrorData{Code: code, Message: text})
	return msg
}
