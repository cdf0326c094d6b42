// Copyright 2025 Poiesic Systems
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


package core

import (
	"slices"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// chunkMUSSer implements MUS format serialization for Chunk values.
// Metadata keys are written in sorted order so the encoding is deterministic.
type chunkMUSSer struct{}

// ChunkMUS serializes Chunk values for storage.
var ChunkMUS = chunkMUSSer{}

// Marshal writes the chunk into bs and returns the number of bytes written.
// bs must be at least Size(c) bytes long.
func (chunkMUSSer) Marshal(c Chunk, bs []byte) (n int) {
	n = ord.String.Marshal(c.ID, bs)
	n += ord.String.Marshal(c.Text, bs[n:])

	n += varint.Int.Marshal(len(c.Metadata), bs[n:])
	for _, k := range sortedMetaKeys(c.Metadata) {
		n += ord.String.Marshal(k, bs[n:])
		n += ord.String.Marshal(c.Metadata[k], bs[n:])
	}

	n += varint.Int.Marshal(len(c.Vector), bs[n:])
	for _, f := range c.Vector {
		n += varint.Float32.Marshal(f, bs[n:])
	}

	n += varint.Int64.Marshal(c.InsertedAt.UnixMicro(), bs[n:])
	n += varint.Int64.Marshal(c.UpdatedAt.UnixMicro(), bs[n:])
	return n
}

// Unmarshal reads a chunk from bs and returns it with the number of bytes read.
func (chunkMUSSer) Unmarshal(bs []byte) (c Chunk, n int, err error) {
	var n1 int

	c.ID, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	c.Text, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}

	var length int
	length, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	if length < 0 {
		err = ErrNegativeLength
		return
	}
	if length > 0 {
		c.Metadata = make(map[string]string, length)
		for i := 0; i < length; i++ {
			var k, v string
			k, n1, err = ord.String.Unmarshal(bs[n:])
			n += n1
			if err != nil {
				return
			}
			v, n1, err = ord.String.Unmarshal(bs[n:])
			n += n1
			if err != nil {
				return
			}
			c.Metadata[k] = v
		}
	}

	length, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	if length < 0 {
		err = ErrNegativeLength
		return
	}
	if length > 0 {
		c.Vector = make([]float32, length)
		for i := 0; i < length; i++ {
			c.Vector[i], n1, err = varint.Float32.Unmarshal(bs[n:])
			n += n1
			if err != nil {
				return
			}
		}
	}

	var micros int64
	micros, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	c.InsertedAt = time.UnixMicro(micros).UTC()

	micros, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	c.UpdatedAt = time.UnixMicro(micros).UTC()
	return
}

// Size returns the number of bytes Marshal will write for the chunk.
func (chunkMUSSer) Size(c Chunk) (size int) {
	size = ord.String.Size(c.ID)
	size += ord.String.Size(c.Text)

	size += varint.Int.Size(len(c.Metadata))
	for k, v := range c.Metadata {
		size += ord.String.Size(k)
		size += ord.String.Size(v)
	}

	size += varint.Int.Size(len(c.Vector))
	for _, f := range c.Vector {
		size += varint.Float32.Size(f)
	}

	size += varint.Int64.Size(c.InsertedAt.UnixMicro())
	size += varint.Int64.Size(c.UpdatedAt.UnixMicro())
	return size
}

func sortedMetaKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// checkpointMUSSer implements MUS format serialization for Checkpoint values.
type checkpointMUSSer struct{}

// CheckpointMUS serializes Checkpoint values for storage.
var CheckpointMUS = checkpointMUSSer{}

// Marshal writes the checkpoint into bs and returns the number of bytes written.
func (checkpointMUSSer) Marshal(c Checkpoint, bs []byte) (n int) {
	n = ord.String.Marshal(c.ProcessorType, bs)
	n += ord.String.Marshal(c.LastChunkID, bs[n:])
	n += varint.Int.Marshal(c.Processed, bs[n:])
	n += varint.Int64.Marshal(c.UpdatedAt.UnixMicro(), bs[n:])
	return n
}

// Unmarshal reads a checkpoint from bs and returns it with the bytes read.
func (checkpointMUSSer) Unmarshal(bs []byte) (c Checkpoint, n int, err error) {
	var n1 int

	c.ProcessorType, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	c.LastChunkID, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	c.Processed, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}

	var micros int64
	micros, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	c.UpdatedAt = time.UnixMicro(micros).UTC()
	return
}

// Size returns the number of bytes Marshal will write for the checkpoint.
func (checkpointMUSSer) Size(c Checkpoint) (size int) {
	size = ord.String.Size(c.ProcessorType)
	size += ord.String.Size(c.LastChunkID)
	size += varint.Int.Size(c.Processed)
	size += varint.Int64.Size(c.UpdatedAt.UnixMicro())
	return size
}
