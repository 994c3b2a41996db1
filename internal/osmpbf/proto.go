package osmpbf

import "google.golang.org/protobuf/encoding/protowire"

// Field numbers of fileformat.proto and osmformat.proto.
const (
	blobRawSize  protowire.Number = 2
	blobZlibData protowire.Number = 3

	blobHeaderType     protowire.Number = 1
	blobHeaderDatasize protowire.Number = 3

	headerBBox                protowire.Number = 1
	headerRequiredFeatures    protowire.Number = 4
	headerOptionalFeatures    protowire.Number = 5
	headerWritingProgram      protowire.Number = 16
	headerSource              protowire.Number = 17
	headerReplicationTime     protowire.Number = 32
	headerReplicationSequence protowire.Number = 33
	headerReplicationBaseURL  protowire.Number = 34

	bboxLeft   protowire.Number = 1
	bboxRight  protowire.Number = 2
	bboxTop    protowire.Number = 3
	bboxBottom protowire.Number = 4

	blockStringTable     protowire.Number = 1
	blockGroup           protowire.Number = 2
	blockGranularity     protowire.Number = 17
	blockDateGranularity protowire.Number = 18

	stringTableS protowire.Number = 1

	groupDense     protowire.Number = 2
	groupWays      protowire.Number = 3
	groupRelations protowire.Number = 4

	infoVersion   protowire.Number = 1
	infoTimestamp protowire.Number = 2
	infoChangeset protowire.Number = 3
	infoUID       protowire.Number = 4
	infoUserSID   protowire.Number = 5
	infoVisible   protowire.Number = 6

	denseID       protowire.Number = 1
	denseInfo     protowire.Number = 5
	denseLat      protowire.Number = 8
	denseLon      protowire.Number = 9
	denseKeysVals protowire.Number = 10

	wayID   protowire.Number = 1
	wayKeys protowire.Number = 2
	wayVals protowire.Number = 3
	wayInfo protowire.Number = 4
	wayRefs protowire.Number = 8

	relID       protowire.Number = 1
	relKeys     protowire.Number = 2
	relVals     protowire.Number = 3
	relInfo     protowire.Number = 4
	relRolesSID protowire.Number = 8
	relMemIDs   protowire.Number = 9
	relTypes    protowire.Number = 10
)

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendSint64Field(b []byte, num protowire.Number, v int64) []byte {
	return appendVarintField(b, num, protowire.EncodeZigZag(v))
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendStringField(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// packed appends a length-delimited run of varints built by fill.
func appendPacked(b []byte, num protowire.Number, scratch *[]byte, fill func([]byte) []byte) []byte {
	p := fill((*scratch)[:0])
	*scratch = p
	if len(p) == 0 {
		return b
	}
	return appendBytesField(b, num, p)
}

func packInt64(vals []int64) func([]byte) []byte {
	return func(p []byte) []byte {
		for _, v := range vals {
			p = protowire.AppendVarint(p, uint64(v))
		}
		return p
	}
}

func packSint64(vals []int64) func([]byte) []byte {
	return func(p []byte) []byte {
		for _, v := range vals {
			p = protowire.AppendVarint(p, protowire.EncodeZigZag(v))
		}
		return p
	}
}

func packBool(vals []bool) func([]byte) []byte {
	return func(p []byte) []byte {
		for _, v := range vals {
			p = protowire.AppendVarint(p, protowire.EncodeBool(v))
		}
		return p
	}
}

// deltas replaces vals with their successive differences.
func deltas(vals []int64) []int64 {
	var prev int64
	for i, v := range vals {
		vals[i] = v - prev
		prev = v
	}
	return vals
}
