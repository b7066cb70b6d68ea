// Package envelope parses the JSON messages gateway nodes publish for every
// relayed advertisement.
package envelope

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedEnvelope wraps every parse failure.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// Envelope is one relayed advertisement as published by a gateway.
type Envelope struct {
	// Data is the raw advertisement packet.
	Data []byte
	// RSSI is the signal strength the gateway received it with.
	RSSI int
}

type wireEnvelope struct {
	Data *string          `json:"data"`
	RSSI *json.RawMessage `json:"rssi"`
}

// Parse validates and decodes a gateway message of the form
// {"data": "<hex>", "rssi": <int>}. Unknown fields are ignored.
func Parse(payload []byte) (Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))

	var w wireEnvelope
	if err := dec.Decode(&w); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if dec.More() {
		return Envelope{}, fmt.Errorf("%w: trailing data after object", ErrMalformedEnvelope)
	}

	if w.Data == nil {
		return Envelope{}, fmt.Errorf("%w: missing data", ErrMalformedEnvelope)
	}
	hexData := strings.TrimSpace(*w.Data)
	if hexData == "" {
		return Envelope{}, fmt.Errorf("%w: empty data", ErrMalformedEnvelope)
	}
	data, err := hex.DecodeString(hexData)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: data: %v", ErrMalformedEnvelope, err)
	}

	if w.RSSI == nil {
		return Envelope{}, fmt.Errorf("%w: missing rssi", ErrMalformedEnvelope)
	}
	rawRSSI := string(*w.RSSI)
	rssi, err := strconv.ParseInt(rawRSSI, 10, 32)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: rssi %s is not an integer", ErrMalformedEnvelope, rawRSSI)
	}

	return Envelope{Data: data, RSSI: int(rssi)}, nil
}

// Format encodes an envelope the way gateways publish it.
func Format(e Envelope) ([]byte, error) {
	return json.Marshal(struct {
		Data string `json:"data"`
		RSSI int    `json:"rssi"`
	}{
		Data: hex.EncodeToString(e.Data),
		RSSI: e.RSSI,
	})
}
