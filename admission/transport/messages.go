package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"

	"blockslot/admission/domain"
)

const (
	reasonBadMessage   = "bad_message"
	reasonUnknownEvent = "unknown_event"
)

// envelope é o formato de fio nos dois sentidos: {"event": "...", "data": {...}}.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func encodeEvent(ev domain.Event) ([]byte, error) {
	data := ev.Payload
	if data == nil {
		data = struct{}{}
	}
	return json.Marshal(outbound{Event: ev.Name, Data: data})
}

// parseCost extrai "cost" de reserve_tx. Qualquer número positivo vale, inclusive
// 12.0 e 1e2; fração arredonda para cima e valores enormes saturam em
// math.MaxInt (e falham na cobrança). Ausente, null, string, zero ou negativo
// viram 0 e o Gateway aplica o custo padrão.
func parseCost(data json.RawMessage) int {
	if len(bytes.TrimSpace(data)) == 0 {
		return 0
	}
	var body struct {
		Cost json.RawMessage `json:"cost"`
	}
	if err := json.Unmarshal(data, &body); err != nil || len(body.Cost) == 0 {
		return 0
	}

	dec := json.NewDecoder(bytes.NewReader(body.Cost))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0
	}
	if math.IsNaN(f) || f <= 0 {
		return 0
	}
	f = math.Ceil(f)
	if f >= float64(math.MaxInt) {
		return math.MaxInt
	}
	return int(f)
}
