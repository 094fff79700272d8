// Package bag implements the append-only DataStore recorder/replayer
// (§4.11): a JSONL writer with a binary-searchable index and CRC32 footer,
// a reader supporting seek-by-time and corrupt-line recovery, and a
// speed-scaled replayer.
package bag

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Record is one logged DataStore write (§4.11).
type Record struct {
	TimestampNS int64  `json:"ts"`
	Topic       string `json:"topic"`
	Value       any    `json:"value"`
	SchemaID    string `json:"schema,omitempty"`
}

func (r Record) marshal() ([]byte, error) {
	return json.Marshal(r)
}

// unmarshalStrict fully decodes line into a Record, failing on any
// malformed JSON.
func unmarshalStrict(line []byte) (Record, error) {
	var r Record
	err := json.Unmarshal(line, &r)
	return r, err
}

// unmarshalRecovery extracts whatever fields gjson can find in a
// possibly-truncated or corrupt line, without failing the whole line on a
// single bad field. Used only in recovery-mode reads (§4.11, §7.vi).
func unmarshalRecovery(line []byte) (Record, bool) {
	if !gjson.ValidBytes(line) {
		return Record{}, false
	}
	result := gjson.ParseBytes(line)
	ts := result.Get("ts")
	topic := result.Get("topic")
	if !ts.Exists() || !topic.Exists() {
		return Record{}, false
	}
	return Record{
		TimestampNS: ts.Int(),
		Topic:       topic.String(),
		Value:       result.Get("value").Value(),
		SchemaID:    result.Get("schema").String(),
	}, true
}
