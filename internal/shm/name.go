package shm

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// nameSpace issues process-unique entity names. Names embed an instance
// token, the rank, and a per-kind sequence number, so that names minted by
// different processes never collide when archives travel between them.
type nameSpace struct {
	instance string
	rank     int
	objectID atomic.Uint64
	arrayID  atomic.Uint64
}

func newNameSpace(rank int) *nameSpace {
	return &nameSpace{
		instance: uuid.NewString()[:8],
		rank:     rank,
	}
}

func (ns *nameSpace) arrayName() string {
	id := ns.arrayID.Add(1)
	return fmt.Sprintf("%s_%dr_a%06d", ns.instance, ns.rank, id)
}

func (ns *nameSpace) objectName() string {
	id := ns.objectID.Add(1)
	return fmt.Sprintf("%s_%dr_o%06d", ns.instance, ns.rank, id)
}
