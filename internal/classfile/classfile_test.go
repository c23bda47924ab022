package classfile

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpscan/engine/internal/types"
)

// cpBuilder assembles a minimal, valid constant pool and class body for
// tests, standing in for real javac output.
type cpBuilder struct {
	buf   bytes.Buffer
	count uint16
}

func (b *cpBuilder) utf8(s string) uint16 {
	b.buf.WriteByte(tagUTF8)
	writeU16(&b.buf, uint16(len(s)))
	b.buf.WriteString(s)
	b.count++
	return b.count
}

func (b *cpBuilder) class(nameIdx uint16) uint16 {
	b.buf.WriteByte(tagClass)
	writeU16(&b.buf, nameIdx)
	b.count++
	return b.count
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func buildMinimalClass(t *testing.T, thisName, superName string, accessFlags uint16, annotations bool) []byte {
	t.Helper()
	var cp cpBuilder

	thisNameIdx := cp.utf8(toSlashed(thisName))
	thisClassIdx := cp.class(thisNameIdx)
	superNameIdx := cp.utf8(toSlashed(superName))
	superClassIdx := cp.class(superNameIdx)

	var annAttrNameIdx, annTypeIdx uint16
	if annotations {
		annAttrNameIdx = cp.utf8("RuntimeVisibleAnnotations")
		annTypeIdx = cp.utf8("Lcom/x/Marker;")
	}

	var out bytes.Buffer
	writeU32(&out, magic)
	writeU16(&out, 0) // minor
	writeU16(&out, 61) // major

	writeU16(&out, cp.count+1) // constant_pool_count = count+1
	out.Write(cp.buf.Bytes())

	writeU16(&out, accessFlags)
	writeU16(&out, thisClassIdx)
	writeU16(&out, superClassIdx)
	writeU16(&out, 0) // interfaces_count

	writeU16(&out, 0) // fields_count
	writeU16(&out, 0) // methods_count

	if annotations {
		writeU16(&out, 1) // attributes_count
		writeU16(&out, annAttrNameIdx)
		// attribute payload: num_annotations(2) + [type_index(2) num_pairs(2)]
		var payload bytes.Buffer
		writeU16(&payload, 1)
		writeU16(&payload, annTypeIdx)
		writeU16(&payload, 0)
		writeU32(&out, uint32(payload.Len()))
		out.Write(payload.Bytes())
	} else {
		writeU16(&out, 0) // attributes_count
	}

	return out.Bytes()
}

func toSlashed(dotted string) string {
	out := []byte(dotted)
	for i, c := range out {
		if c == '.' {
			out[i] = '/'
		}
	}
	return string(out)
}

func TestParseMinimalClass(t *testing.T) {
	data := buildMinimalClass(t, "com.x.Foo", "java.lang.Object", AccPublic, false)
	rec, err := Parse(bytes.NewReader(data), 3, false)
	require.NoError(t, err)
	assert.Equal(t, "com.x.Foo", rec.TypeName)
	assert.Equal(t, "", rec.SuperclassName, "java.lang.Object superclass is suppressed")
	assert.Equal(t, types.ElementID(3), rec.OwningElement)
	assert.False(t, rec.IsExternalClass)
}

func TestParseClassWithSuperclass(t *testing.T) {
	data := buildMinimalClass(t, "com.x.Sub", "com.x.Base", AccPublic, false)
	rec, err := Parse(bytes.NewReader(data), 0, false)
	require.NoError(t, err)
	assert.Equal(t, "com.x.Base", rec.SuperclassName)
}

func TestParseClassWithAnnotation(t *testing.T) {
	data := buildMinimalClass(t, "com.x.Annotated", "java.lang.Object", AccPublic, true)
	rec, err := Parse(bytes.NewReader(data), 0, false)
	require.NoError(t, err)
	require.Len(t, rec.Annotations, 1)
	assert.Equal(t, "com.x.Marker", rec.Annotations[0].TypeName)
}

func TestParseRejectsBadMagic(t *testing.T) {
	_, err := Parse(bytes.NewReader([]byte{0, 0, 0, 0, 0, 0, 0, 0}), 0, false)
	assert.Error(t, err)
}
