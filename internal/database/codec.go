// Copyright 2025 Microsoft Corporation
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package database

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// DictionaryEntry is one key/value pair of an ordered session dictionary.
// A slice of these, not a Go map, carries the session items and static
// objects: map iteration order is undefined and the wire format needs a
// stable order to hand to the host framework's own serializer.
type DictionaryEntry struct {
	Key   string
	Value []byte
}

// DictionaryCodec serializes/deserializes an ordered dictionary. The core
// treats this as an external collaborator (the host framework's own
// object model serializer); JSONDictionaryCodec below is the default,
// swappable implementation.
type DictionaryCodec interface {
	Marshal(entries []DictionaryEntry) ([]byte, error)
	Unmarshal(data []byte) ([]DictionaryEntry, error)
}

// JSONDictionaryCodec serializes a dictionary as a JSON array of
// {"key":...,"value":...} objects, base64-encoding the opaque value
// bytes (encoding/json does this automatically for []byte fields).
type JSONDictionaryCodec struct{}

type jsonDictionaryEntry struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

func (JSONDictionaryCodec) Marshal(entries []DictionaryEntry) ([]byte, error) {
	wire := make([]jsonDictionaryEntry, len(entries))
	for i, e := range entries {
		wire[i] = jsonDictionaryEntry{Key: e.Key, Value: e.Value}
	}
	return json.Marshal(wire)
}

func (JSONDictionaryCodec) Unmarshal(data []byte) ([]DictionaryEntry, error) {
	var wire []jsonDictionaryEntry
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	entries := make([]DictionaryEntry, len(wire))
	for i, e := range wire {
		entries[i] = DictionaryEntry{Key: e.Key, Value: e.Value}
	}
	return entries, nil
}

// SessionValue is the in-memory representation of a session: its timeout
// plus the two dictionaries defined in §1 as the opaque user-payload
// object model.
type SessionValue struct {
	// TimeoutMinutes is the session's nominal timeout.
	TimeoutMinutes int32

	SessionItems  []DictionaryEntry
	StaticObjects []DictionaryEntry
}

// IsEmpty reports whether both dictionaries are empty, matching the wire
// format's "six-byte payload" special case.
func (v *SessionValue) IsEmpty() bool {
	return len(v.SessionItems) == 0 && len(v.StaticObjects) == 0
}

// Encode serializes value per §4.1's wire layout:
//  1. int32 timeout in minutes
//  2. bool hasSessionItems
//  3. bool hasStaticObjects
//  4. session items, if present
//  5. static objects, if present
//
// When compress is true the whole buffer is gzipped at best-compression.
func Encode(value *SessionValue, compress bool, codec DictionaryCodec) ([]byte, error) {
	if codec == nil {
		codec = JSONDictionaryCodec{}
	}

	var buf bytes.Buffer
	hasSessionItems := len(value.SessionItems) > 0
	hasStaticObjects := len(value.StaticObjects) > 0

	if err := binary.Write(&buf, binary.LittleEndian, value.TimeoutMinutes); err != nil {
		return nil, fmt.Errorf("database: encode timeout: %w", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, hasSessionItems); err != nil {
		return nil, fmt.Errorf("database: encode hasSessionItems: %w", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, hasStaticObjects); err != nil {
		return nil, fmt.Errorf("database: encode hasStaticObjects: %w", err)
	}

	if hasSessionItems {
		if err := writeLengthPrefixed(&buf, codec, value.SessionItems); err != nil {
			return nil, fmt.Errorf("database: encode session items: %w", err)
		}
	}
	if hasStaticObjects {
		if err := writeLengthPrefixed(&buf, codec, value.StaticObjects); err != nil {
			return nil, fmt.Errorf("database: encode static objects: %w", err)
		}
	}

	if !compress {
		return buf.Bytes(), nil
	}

	var gzBuf bytes.Buffer
	gz, err := gzip.NewWriterLevel(&gzBuf, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("database: create gzip writer: %w", err)
	}
	if _, err := gz.Write(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("database: gzip payload: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("database: close gzip writer: %w", err)
	}

	return gzBuf.Bytes(), nil
}

// Decode is the inverse of Encode. The compressed flag must match what
// the content record's Compressed field recorded when the payload was
// written; it is carried per-record so compression can be toggled
// between deployments without invalidating prior records.
func Decode(data []byte, compressed bool, codec DictionaryCodec) (*SessionValue, error) {
	if codec == nil {
		codec = JSONDictionaryCodec{}
	}

	if compressed {
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("database: create gzip reader: %w", err)
		}
		defer gz.Close()

		raw, err := io.ReadAll(gz)
		if err != nil {
			return nil, fmt.Errorf("database: gunzip payload: %w", err)
		}
		data = raw
	}

	buf := bytes.NewReader(data)
	value := &SessionValue{}

	if err := binary.Read(buf, binary.LittleEndian, &value.TimeoutMinutes); err != nil {
		return nil, fmt.Errorf("database: decode timeout: %w", err)
	}

	var hasSessionItems, hasStaticObjects bool
	if err := binary.Read(buf, binary.LittleEndian, &hasSessionItems); err != nil {
		return nil, fmt.Errorf("database: decode hasSessionItems: %w", err)
	}
	if err := binary.Read(buf, binary.LittleEndian, &hasStaticObjects); err != nil {
		return nil, fmt.Errorf("database: decode hasStaticObjects: %w", err)
	}

	if hasSessionItems {
		entries, err := readLengthPrefixed(buf, codec)
		if err != nil {
			return nil, fmt.Errorf("database: decode session items: %w", err)
		}
		value.SessionItems = entries
	}
	if hasStaticObjects {
		entries, err := readLengthPrefixed(buf, codec)
		if err != nil {
			return nil, fmt.Errorf("database: decode static objects: %w", err)
		}
		value.StaticObjects = entries
	}

	return value, nil
}

// writeLengthPrefixed marshals entries with codec and writes them as a
// uint32 length followed by the marshaled bytes, so decoding a dictionary
// never has to guess where it ends.
func writeLengthPrefixed(buf *bytes.Buffer, codec DictionaryCodec, entries []DictionaryEntry) error {
	data, err := codec.Marshal(entries)
	if err != nil {
		return err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(data))); err != nil {
		return err
	}
	_, err = buf.Write(data)
	return err
}

func readLengthPrefixed(buf *bytes.Reader, codec DictionaryCodec) ([]DictionaryEntry, error) {
	var length uint32
	if err := binary.Read(buf, binary.LittleEndian, &length); err != nil {
		return nil, err
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(buf, data); err != nil {
		return nil, err
	}
	return codec.Unmarshal(data)
}
