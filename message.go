package modguard

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/xeipuuv/gojsonschema"
)

// ErrMalformedMsg wraps every error returned by ParseHostMsg.
var ErrMalformedMsg = errors.New("malformed host message")

// HostMsg is a message the host sends to the bridge.
type HostMsg interface {
	HostMsg()
}

func IsNilHostMsg(msg HostMsg) bool {
	return msg == nil || reflect.ValueOf(msg).IsNil()
}

const (
	hostMsgHello      = "hello"
	hostMsgConnect    = "connect"
	hostMsgMetadata   = "metadata"
	hostMsgTeamJoin   = "team_join"
	hostMsgDisconnect = "disconnect"
)

const clientIDSchema = `{"type": "integer", "minimum": 0}`

var hostMsgSchemas = map[string]*gojsonschema.Schema{
	hostMsgHello: mustSchema(`{
		"type": "object",
		"required": ["type", "is_server"],
		"properties": {"is_server": {"type": "boolean"}}
	}`),
	hostMsgConnect: mustSchema(`{
		"type": "object",
		"required": ["type", "client_id", "username", "mod_ids"],
		"properties": {
			"client_id": ` + clientIDSchema + `,
			"external_id": {"type": "integer", "minimum": 0},
			"username": {"type": "string"},
			"mod_ids": {"type": "array", "items": {"type": "integer", "minimum": 0}}
		}
	}`),
	hostMsgMetadata: mustSchema(`{
		"type": "object",
		"required": ["type", "mod_id", "title"],
		"properties": {
			"mod_id": {"type": "integer", "minimum": 0},
			"title": {"type": "string"},
			"description": {"type": "string"},
			"preview_url": {"type": "string"}
		}
	}`),
	hostMsgTeamJoin: mustSchema(`{
		"type": "object",
		"required": ["type", "request_id", "client_id", "team"],
		"properties": {
			"request_id": {"type": "string", "minLength": 1},
			"client_id": ` + clientIDSchema + `,
			"team": {"type": "integer", "minimum": 0, "maximum": 3}
		}
	}`),
	hostMsgDisconnect: mustSchema(`{
		"type": "object",
		"required": ["type", "client_id"],
		"properties": {"client_id": ` + clientIDSchema + `}
	}`),
}

func mustSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("invalid host message schema: %v", err))
	}
	return schema
}

// ParseHostMsg decodes one text frame from the host. The frame is checked
// against the schema of its type before it is decoded.
func ParseHostMsg(b []byte) (msg HostMsg, err error) {
	defer func() {
		if err != nil {
			msg = nil
			err = errors.Join(err, ErrMalformedMsg)
		}
	}()

	if !utf8.Valid(b) {
		return nil, errors.New("not a utf8 string")
	}

	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(b, &envelope); err != nil {
		return nil, fmt.Errorf("not a json object: %w", err)
	}

	schema, ok := hostMsgSchemas[envelope.Type]
	if !ok {
		return nil, fmt.Errorf("unknown message type %q", envelope.Type)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(b))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}
	if !result.Valid() {
		var errs []string
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}
		return nil, fmt.Errorf("invalid %s message: %s", envelope.Type, strings.Join(errs, "; "))
	}

	switch envelope.Type {
	case hostMsgHello:
		msg = new(HostHelloMsg)
	case hostMsgConnect:
		msg = new(HostConnectMsg)
	case hostMsgMetadata:
		msg = new(HostMetadataMsg)
	case hostMsgTeamJoin:
		msg = new(HostTeamJoinMsg)
	case hostMsgDisconnect:
		msg = new(HostDisconnectMsg)
	}
	if err := json.Unmarshal(b, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

var _ HostMsg = (*HostHelloMsg)(nil)

// HostHelloMsg opens a bridge session.
type HostHelloMsg struct {
	IsServer bool `json:"is_server"`
}

func (*HostHelloMsg) HostMsg() {}

var _ HostMsg = (*HostConnectMsg)(nil)

type HostConnectMsg struct {
	ClientID   ClientID `json:"client_id"`
	ExternalID uint64   `json:"external_id"`
	Username   string   `json:"username"`
	ModIDs     []ModID  `json:"mod_ids"`
}

func (*HostConnectMsg) HostMsg() {}

// Player converts the message for the Gate.
func (msg *HostConnectMsg) Player() Player {
	return Player{
		ClientID:   msg.ClientID,
		ExternalID: msg.ExternalID,
		Username:   msg.Username,
		ModIDs:     msg.ModIDs,
	}
}

var _ HostMsg = (*HostMetadataMsg)(nil)

type HostMetadataMsg struct {
	ModID       ModID  `json:"mod_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	PreviewURL  string `json:"preview_url"`
}

func (*HostMetadataMsg) HostMsg() {}

func (msg *HostMetadataMsg) Descriptor() ModDescriptor {
	return ModDescriptor{
		ID:          msg.ModID,
		Title:       msg.Title,
		Description: msg.Description,
		PreviewURL:  msg.PreviewURL,
	}
}

var _ HostMsg = (*HostTeamJoinMsg)(nil)

// HostTeamJoinMsg asks whether a player may switch teams. The host holds
// the switch until it gets a TeamJoinResultMsg with the same RequestID.
type HostTeamJoinMsg struct {
	RequestID string   `json:"request_id"`
	ClientID  ClientID `json:"client_id"`
	Team      Team     `json:"team"`
}

func (*HostTeamJoinMsg) HostMsg() {}

var _ HostMsg = (*HostDisconnectMsg)(nil)

type HostDisconnectMsg struct {
	ClientID ClientID `json:"client_id"`
}

func (*HostDisconnectMsg) HostMsg() {}

// CommandMsg is a message the bridge sends to the host.
type CommandMsg interface {
	CommandMsg()
	MarshalJSON() ([]byte, error)
}

func marshalCommand(typ string, body any) ([]byte, error) {
	fields, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	// fields is a non-empty object; splice the type in front of it.
	return []byte(`{"type":"` + typ + `",` + string(fields[1:])), nil
}

var _ CommandMsg = (*TeamJoinResultMsg)(nil)

type TeamJoinResultMsg struct {
	RequestID string
	ClientID  ClientID
	Allow     bool
}

func (*TeamJoinResultMsg) CommandMsg() {}

func (msg *TeamJoinResultMsg) MarshalJSON() ([]byte, error) {
	return marshalCommand("team_join_result", struct {
		RequestID string   `json:"request_id"`
		ClientID  ClientID `json:"client_id"`
		Allow     bool     `json:"allow"`
	}{msg.RequestID, msg.ClientID, msg.Allow})
}

var _ CommandMsg = (*KickMsg)(nil)

type KickMsg struct {
	ClientID ClientID
}

func (*KickMsg) CommandMsg() {}

func (msg *KickMsg) MarshalJSON() ([]byte, error) {
	return marshalCommand("kick", struct {
		ClientID ClientID `json:"client_id"`
	}{msg.ClientID})
}

var _ CommandMsg = (*BroadcastMsg)(nil)

type BroadcastMsg struct {
	Message string
}

func (*BroadcastMsg) CommandMsg() {}

func (msg *BroadcastMsg) MarshalJSON() ([]byte, error) {
	return marshalCommand("broadcast", struct {
		Message string `json:"message"`
	}{msg.Message})
}

var _ CommandMsg = (*RequestDetailsMsg)(nil)

type RequestDetailsMsg struct {
	ModIDs []ModID
}

func (*RequestDetailsMsg) CommandMsg() {}

func (msg *RequestDetailsMsg) MarshalJSON() ([]byte, error) {
	return marshalCommand("request_details", struct {
		ModIDs []ModID `json:"mod_ids"`
	}{msg.ModIDs})
}
