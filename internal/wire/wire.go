// Package wire defines the JSON contract of the /trinity-viz rendering
// service shared by the fetchers and the reference renderer.
package wire

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	Path   = "/trinity-viz"
	WSPath = "/trinity-viz/ws"

	ParamPreset  = "preset"
	ParamDamping = "custom_damp"

	StatusIgnited = "IGNITED"
)

// TrinityData is the numeric diagnostic block of a render.
type TrinityData struct {
	GroundState float64 `json:"ground_state"`
	Difference  float64 `json:"difference"`
	Ratio       float64 `json:"ratio"`
	Phase       float64 `json:"phase"`
	Stability   float64 `json:"stability"`
}

// Payload is a successful render.
type Payload struct {
	Status      string      `json:"status"`
	Preset      string      `json:"preset"`
	CustomDamp  *float64    `json:"custom_damp"`
	TrinityData TrinityData `json:"trinity_data"`
	Image       string      `json:"image"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

// Query encodes render parameters as URL query values.
func Query(preset string, damping *float64) url.Values {
	q := url.Values{}
	q.Set(ParamPreset, preset)
	if damping != nil {
		q.Set(ParamDamping, strconv.FormatFloat(*damping, 'f', -1, 64))
	}
	return q
}

// WSRequest is a render request sent over the websocket.
type WSRequest struct {
	ID         string   `json:"id"`
	Preset     string   `json:"preset"`
	CustomDamp *float64 `json:"custom_damp,omitempty"`
}

// WSResponse answers a WSRequest. Exactly one of Payload or Error is set.
type WSResponse struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
	*Payload
}

var ErrNotDataURI = errors.New("wire: not a data uri")

// EncodeDataURI builds a base64 data URI.
func EncodeDataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURI splits a base64 data URI into its media type and bytes.
func DecodeDataURI(uri string) (mime string, data []byte, err error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, ErrNotDataURI
	}
	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing payload", ErrNotDataURI)
	}
	mime, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", nil, fmt.Errorf("wire: unsupported data uri encoding %q", meta)
	}
	data, err = base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("wire: decode image: %w", err)
	}
	if mime == "" {
		mime = "text/plain"
	}
	return mime, data, nil
}
