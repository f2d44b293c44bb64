package dttest

import (
	"bytes"
	"encoding/binary"

	"github.com/u-root/u-root/pkg/dt"
)

const (
	fdtMagic     = 0xd00dfeed
	fdtBeginNode = 0x1
	fdtEndNode   = 0x2
	fdtProp      = 0x3
	fdtEnd       = 0x9
	fdtVersion   = 17
	fdtLastComp  = 16
	fdtHeaderLen = 40
	fdtRsvmapLen = 16
)

type blobWriter struct {
	structure bytes.Buffer
	strings   bytes.Buffer
	offsets   map[string]uint32
}

func (w *blobWriter) u32(v uint32) {
	w.structure.Write(binary.BigEndian.AppendUint32(nil, v))
}

func (w *blobWriter) align() {
	for w.structure.Len()%4 != 0 {
		w.structure.WriteByte(0)
	}
}

func (w *blobWriter) name(s string) uint32 {
	if off, ok := w.offsets[s]; ok {
		return off
	}
	off := uint32(w.strings.Len())
	w.strings.WriteString(s)
	w.strings.WriteByte(0)
	w.offsets[s] = off
	return off
}

func (w *blobWriter) node(n *dt.Node) {
	w.u32(fdtBeginNode)
	w.structure.WriteString(n.Name)
	w.structure.WriteByte(0)
	w.align()
	for _, p := range n.Properties {
		w.u32(fdtProp)
		w.u32(uint32(len(p.Value)))
		w.u32(w.name(p.Name))
		w.structure.Write(p.Value)
		w.align()
	}
	for _, c := range n.Children {
		w.node(c)
	}
	w.u32(fdtEndNode)
}

// Blob flattens root into a version 17 devicetree blob with an empty
// memory reservation map. The root's own name is written as "".
func Blob(root *dt.Node) []byte {
	w := &blobWriter{offsets: map[string]uint32{}}
	top := *root
	top.Name = ""
	w.node(&top)
	w.u32(fdtEnd)

	structOff := uint32(fdtHeaderLen + fdtRsvmapLen)
	structLen := uint32(w.structure.Len())
	stringsOff := structOff + structLen
	stringsLen := uint32(w.strings.Len())
	total := stringsOff + stringsLen

	out := make([]byte, 0, total)
	for _, v := range []uint32{
		fdtMagic, total, structOff, stringsOff, fdtHeaderLen,
		fdtVersion, fdtLastComp, 0, stringsLen, structLen,
	} {
		out = binary.BigEndian.AppendUint32(out, v)
	}
	out = append(out, make([]byte, fdtRsvmapLen)...)
	out = append(out, w.structure.Bytes()...)
	out = append(out, w.strings.Bytes()...)
	return out
}
