// Package bookproto provides the book-catalog request/response pair used
// throughout this module's tests and its CLI's call/bench subcommands, in
// both wire families. Grounded on original_source/test/proto_cc/book.h's
// BookReq/BookRsp: a name/age/book-list/extend-map request answered with a
// result code and an extend map, at the same URIs the original assigns
// ((200<<8|101) and (200<<8|102)).
package bookproto

import (
	"github.com/ccqqhhzy/tinyrpc/pkg/binaryproto"
	"github.com/ccqqhhzy/tinyrpc/pkg/message"
)

const (
	BookReqURI message.URI = 200<<8 | 101
	BookRspURI message.URI = 200<<8 | 102
)

// kv is a flattened map entry, used to carry book.h's map<string,string>
// fields through binaryproto's container grammar, which has no native map
// primitive.
type kv struct {
	Key   string
	Value string
}

func encodeKV(p *binaryproto.Payload, e kv) {
	p.AppendString(e.Key)
	p.AppendString(e.Value)
}

func decodeKV(p *binaryproto.Payload) kv {
	k := p.TakeoutString()
	v := p.TakeoutString()
	return kv{Key: k, Value: v}
}

func mapToKVs(m map[string]string) []kv {
	out := make([]kv, 0, len(m))
	for k, v := range m {
		out = append(out, kv{Key: k, Value: v})
	}
	return out
}

func kvsToMap(kvs []kv) map[string]string {
	m := make(map[string]string, len(kvs))
	for _, e := range kvs {
		m[e.Key] = e.Value
	}
	return m
}

// BinaryBookReq is book.h's BookReq over the reflection-free binary
// protocol family.
type BinaryBookReq struct {
	Name   string
	Age    uint32
	Book   []string
	Extend []map[string]string
}

func NewBinaryBookReq() *BinaryBookReq { return &BinaryBookReq{} }

func (r *BinaryBookReq) URI() message.URI { return BookReqURI }

func (r *BinaryBookReq) EncodeBinary(p *binaryproto.Payload) {
	p.AppendString(r.Name)
	p.AppendUint32(r.Age)
	binaryproto.AppendContainer(p, r.Book, func(p *binaryproto.Payload, s string) { p.AppendString(s) })
	asKVLists := make([][]kv, 0, len(r.Extend))
	for _, m := range r.Extend {
		asKVLists = append(asKVLists, mapToKVs(m))
	}
	binaryproto.AppendCompositeContainer(p, asKVLists, encodeKV)
}

func (r *BinaryBookReq) DecodeBinary(p *binaryproto.Payload) {
	r.Name = p.TakeoutString()
	r.Age = p.TakeoutUint32()
	r.Book = binaryproto.TakeoutContainer(p, func(p *binaryproto.Payload) string { return p.TakeoutString() })
	kvLists := binaryproto.TakeoutCompositeContainer(p, decodeKV)
	r.Extend = make([]map[string]string, 0, len(kvLists))
	for _, kvs := range kvLists {
		r.Extend = append(r.Extend, kvsToMap(kvs))
	}
}

// BinaryBookRsp is book.h's BookRsp over the binary protocol family.
type BinaryBookRsp struct {
	Result uint32
	Extend map[string]string
}

func NewBinaryBookRsp() *BinaryBookRsp { return &BinaryBookRsp{} }

func (r *BinaryBookRsp) URI() message.URI { return BookRspURI }

func (r *BinaryBookRsp) EncodeBinary(p *binaryproto.Payload) {
	p.AppendUint32(r.Result)
	binaryproto.AppendContainer(p, mapToKVs(r.Extend), encodeKV)
}

func (r *BinaryBookRsp) DecodeBinary(p *binaryproto.Payload) {
	r.Result = p.TakeoutUint32()
	r.Extend = kvsToMap(binaryproto.TakeoutContainer(p, decodeKV))
}

// SchemaBookReq is the same request shape over the gob-encoded
// schema-described protocol family; exported fields only, since gob
// ignores unexported ones.
type SchemaBookReq struct {
	Name   string
	Age    uint32
	Book   []string
	Extend []map[string]string
}

func NewSchemaBookReq() *SchemaBookReq { return &SchemaBookReq{} }

func (r *SchemaBookReq) URI() message.URI { return BookReqURI }

// SchemaBookRsp is the same response shape over the schema-described
// protocol family.
type SchemaBookRsp struct {
	Result uint32
	Extend map[string]string
}

func NewSchemaBookRsp() *SchemaBookRsp { return &SchemaBookRsp{} }

func (r *SchemaBookRsp) URI() message.URI { return BookRspURI }
