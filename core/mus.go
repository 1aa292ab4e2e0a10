package core

import (
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// Hand-maintained MUS serializers for records persisted in BadgerDB.
// Field order is the storage format; append new fields at the end only.

// ChunkMUS serializes Chunk values.
var ChunkMUS = chunkMUS{}

// ParameterMUS serializes Parameter values.
var ParameterMUS = parameterMUS{}

// ChecklistMUS serializes Checklist values.
var ChecklistMUS = checklistMUS{}

type chunkMUS struct{}

func (chunkMUS) Marshal(v Chunk, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(v.Id), bs)
	n += ord.String.Marshal(v.ApplicationID, bs[n:])
	n += ord.String.Marshal(v.DocumentID, bs[n:])
	n += varint.Int.Marshal(v.Page, bs[n:])
	n += ord.String.Marshal(v.Section, bs[n:])
	n += ord.String.Marshal(v.ContentType, bs[n:])
	n += ord.String.Marshal(v.Text, bs[n:])
	n += marshalVector(v.Vector, bs[n:])
	n += varint.Int.Marshal(v.Position, bs[n:])
	n += varint.Int64.Marshal(v.InsertedAt.UnixMicro(), bs[n:])
	return n
}

func (chunkMUS) Unmarshal(bs []byte) (v Chunk, n int, err error) {
	var (
		id    uint64
		micro int64
		m     int
	)
	if id, n, err = varint.Uint64.Unmarshal(bs); err != nil {
		return
	}
	v.Id = ID(id)
	if v.ApplicationID, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.DocumentID, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.Page, m, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.Section, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.ContentType, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.Text, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.Vector, m, err = unmarshalVector(bs[n:]); err != nil {
		return
	}
	n += m
	if v.Position, m, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if micro, m, err = varint.Int64.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	v.InsertedAt = time.UnixMicro(micro).UTC()
	return
}

func (chunkMUS) Size(v Chunk) (size int) {
	size = varint.Uint64.Size(uint64(v.Id))
	size += ord.String.Size(v.ApplicationID)
	size += ord.String.Size(v.DocumentID)
	size += varint.Int.Size(v.Page)
	size += ord.String.Size(v.Section)
	size += ord.String.Size(v.ContentType)
	size += ord.String.Size(v.Text)
	size += sizeVector(v.Vector)
	size += varint.Int.Size(v.Position)
	size += varint.Int64.Size(v.InsertedAt.UnixMicro())
	return size
}

type parameterMUS struct{}

func (parameterMUS) Marshal(v Parameter, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(v.Id), bs)
	n += ord.String.Marshal(v.Name, bs[n:])
	n += ord.String.Marshal(v.SearchQuery, bs[n:])
	n += marshalSearchConfig(v.Config, bs[n:])
	return n
}

func (parameterMUS) Unmarshal(bs []byte) (v Parameter, n int, err error) {
	var (
		id uint64
		m  int
	)
	if id, n, err = varint.Uint64.Unmarshal(bs); err != nil {
		return
	}
	v.Id = ID(id)
	if v.Name, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.SearchQuery, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.Config, m, err = unmarshalSearchConfig(bs[n:]); err != nil {
		return
	}
	n += m
	return
}

func (parameterMUS) Size(v Parameter) (size int) {
	size = varint.Uint64.Size(uint64(v.Id))
	size += ord.String.Size(v.Name)
	size += ord.String.Size(v.SearchQuery)
	size += sizeSearchConfig(v.Config)
	return size
}

type checklistMUS struct{}

func (checklistMUS) Marshal(v Checklist, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(v.Id), bs)
	n += ord.String.Marshal(v.Name, bs[n:])
	n += varint.Int.Marshal(len(v.Parameters), bs[n:])
	for i := range v.Parameters {
		n += ParameterMUS.Marshal(v.Parameters[i], bs[n:])
	}
	n += varint.Int64.Marshal(v.InsertedAt.UnixMicro(), bs[n:])
	return n
}

func (checklistMUS) Unmarshal(bs []byte) (v Checklist, n int, err error) {
	var (
		id     uint64
		length int
		micro  int64
		m      int
	)
	if id, n, err = varint.Uint64.Unmarshal(bs); err != nil {
		return
	}
	v.Id = ID(id)
	if v.Name, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if length, m, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if length > 0 {
		v.Parameters = make([]Parameter, length)
		for i := 0; i < length; i++ {
			if v.Parameters[i], m, err = ParameterMUS.Unmarshal(bs[n:]); err != nil {
				return
			}
			n += m
		}
	}
	if micro, m, err = varint.Int64.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	v.InsertedAt = time.UnixMicro(micro).UTC()
	return
}

func (checklistMUS) Size(v Checklist) (size int) {
	size = varint.Uint64.Size(uint64(v.Id))
	size += ord.String.Size(v.Name)
	size += varint.Int.Size(len(v.Parameters))
	for i := range v.Parameters {
		size += ParameterMUS.Size(v.Parameters[i])
	}
	size += varint.Int64.Size(v.InsertedAt.UnixMicro())
	return size
}

func marshalSearchConfig(v SearchConfig, bs []byte) (n int) {
	n = varint.Int.Marshal(v.SearchLimit, bs)
	n += ord.Bool.Marshal(v.UseReranker, bs[n:])
	n += varint.Int.Marshal(v.RerankLimit, bs[n:])
	n += ord.Bool.Marshal(v.UseSmartSearch, bs[n:])
	n += raw.Float64.Marshal(v.VectorWeight, bs[n:])
	n += raw.Float64.Marshal(v.TextWeight, bs[n:])
	n += varint.Int.Marshal(v.HybridThreshold, bs[n:])
	n += ord.Bool.Marshal(v.UseLLM, bs[n:])
	n += ord.String.Marshal(v.LLM.Model, bs[n:])
	n += ord.String.Marshal(v.LLM.Query, bs[n:])
	n += ord.String.Marshal(v.LLM.PromptTemplate, bs[n:])
	n += raw.Float64.Marshal(v.LLM.Temperature, bs[n:])
	n += varint.Int.Marshal(v.LLM.MaxTokens, bs[n:])
	n += ord.Bool.Marshal(v.LLM.UseFullScan, bs[n:])
	return n
}

func unmarshalSearchConfig(bs []byte) (v SearchConfig, n int, err error) {
	var m int
	if v.SearchLimit, n, err = varint.Int.Unmarshal(bs); err != nil {
		return
	}
	if v.UseReranker, m, err = ord.Bool.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.RerankLimit, m, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.UseSmartSearch, m, err = ord.Bool.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.VectorWeight, m, err = raw.Float64.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.TextWeight, m, err = raw.Float64.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.HybridThreshold, m, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.UseLLM, m, err = ord.Bool.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.LLM.Model, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.LLM.Query, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.LLM.PromptTemplate, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.LLM.Temperature, m, err = raw.Float64.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.LLM.MaxTokens, m, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.LLM.UseFullScan, m, err = ord.Bool.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	return
}

func sizeSearchConfig(v SearchConfig) (size int) {
	size = varint.Int.Size(v.SearchLimit)
	size += ord.Bool.Size(v.UseReranker)
	size += varint.Int.Size(v.RerankLimit)
	size += ord.Bool.Size(v.UseSmartSearch)
	size += raw.Float64.Size(v.VectorWeight)
	size += raw.Float64.Size(v.TextWeight)
	size += varint.Int.Size(v.HybridThreshold)
	size += ord.Bool.Size(v.UseLLM)
	size += ord.String.Size(v.LLM.Model)
	size += ord.String.Size(v.LLM.Query)
	size += ord.String.Size(v.LLM.PromptTemplate)
	size += raw.Float64.Size(v.LLM.Temperature)
	size += varint.Int.Size(v.LLM.MaxTokens)
	size += ord.Bool.Size(v.LLM.UseFullScan)
	return size
}

func marshalVector(v []float32, bs []byte) (n int) {
	n = varint.Int.Marshal(len(v), bs)
	for _, f := range v {
		n += raw.Float32.Marshal(f, bs[n:])
	}
	return n
}

func unmarshalVector(bs []byte) (v []float32, n int, err error) {
	var (
		length int
		m      int
	)
	if length, n, err = varint.Int.Unmarshal(bs); err != nil {
		return
	}
	if length == 0 {
		return
	}
	v = make([]float32, length)
	for i := 0; i < length; i++ {
		if v[i], m, err = raw.Float32.Unmarshal(bs[n:]); err != nil {
			return
		}
		n += m
	}
	return
}

func sizeVector(v []float32) (size int) {
	size = varint.Int.Size(len(v))
	for _, f := range v {
		size += raw.Float32.Size(f)
	}
	return size
}
