package scanner

import (
	"fmt"

	"datapulse/pkg/runtime/constant"
)

// Chunk is one bounded read request.
type Chunk struct {
	Kind    constant.PointKind `json:"kind"`
	Address uint16             `json:"address"`
	Count   uint16             `json:"count"`
}

// Last is the last address the chunk covers.
func (c Chunk) Last() uint16 {
	return c.Address + c.Count - 1
}

// PlanChunks tiles the inclusive range [start,end] with ascending chunks no
// larger than the kind's per-request limit.
func PlanChunks(kind constant.PointKind, start, end uint16) []Chunk {
	if start > end {
		return nil
	}
	limit := kind.Limit()
	chunks := make([]Chunk, 0, (int(end)-int(start))/limit+1)
	for addr := int(start); addr <= int(end); addr += limit {
		count := limit
		if remain := int(end) - addr + 1; remain < count {
			count = remain
		}
		chunks = append(chunks, Chunk{Kind: kind, Address: uint16(addr), Count: uint16(count)})
	}
	return chunks
}

// Plan returns the chunks of a full sweep: coils, then holding registers,
// then input registers.
func Plan(start, end int) ([]Chunk, error) {
	if start < 0 || end > constant.MaxAddress || start > end {
		return nil, fmt.Errorf("%w: [%d,%d]", constant.ErrInvalidRange, start, end)
	}
	chunks := make([]Chunk, 0)
	for _, kind := range constant.PointKinds {
		chunks = append(chunks, PlanChunks(kind, uint16(start), uint16(end))...)
	}
	return chunks, nil
}
