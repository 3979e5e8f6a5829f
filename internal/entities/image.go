package entities

import (
	"encoding/binary"
	"math"
)

// BuildImage lays out ents as a memory image mapped at base: the table
// header at base followed by the records.
func BuildImage(base uint64, ents []Entity) []byte {
	data := make([]byte, HeaderSize+len(ents)*RecordSize)
	binary.LittleEndian.PutUint32(data[0:], uint32(len(ents)))
	binary.LittleEndian.PutUint64(data[8:], base+HeaderSize)

	for i, e := range ents {
		rec := data[HeaderSize+i*RecordSize:]
		binary.LittleEndian.PutUint32(rec[0:], e.ID)
		binary.LittleEndian.PutUint32(rec[4:], math.Float32bits(e.Health))
		binary.LittleEndian.PutUint32(rec[8:], math.Float32bits(e.X))
		binary.LittleEndian.PutUint32(rec[12:], math.Float32bits(e.Y))
	}
	return data
}
