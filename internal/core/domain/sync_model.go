package domain

import (
	"encoding/hex"
	"fmt"
	"time"
)

// SyncStatus ...
type SyncStatus int

const (
	SyncStatusIdle SyncStatus = iota
	SyncStatusSyncing
	SyncStatusStalled
	SyncStatusCorrupt
)

func (s SyncStatus) String() string {
	switch s {
	case SyncStatusSyncing:
		return "syncing"
	case SyncStatusStalled:
		return "stalled"
	case SyncStatusCorrupt:
		return "corrupt"
	default:
		return "idle"
	}
}

// BlockHeader identifies a block by height and hash.
type BlockHeader struct {
	Height uint32
	Hash   string
}

// SyncCursor is the last applied block. An empty hash means that no block
// has been applied yet since the given height.
type SyncCursor = BlockHeader

// SyncState is the persisted progress of the chain sync: the cursor plus the
// headers of the last applied blocks, used to find the fork point on reorgs.
type SyncState struct {
	Cursor       SyncCursor
	Ancestry     []BlockHeader
	Depth        int
	Status       SyncStatus
	LastSyncedAt int64
}

// NewSyncState returns a state that will start syncing from the block after
// the given height.
func NewSyncState(height uint32, depth int) *SyncState {
	if depth <= 0 {
		depth = DefaultAncestryDepth
	}
	return &SyncState{
		Cursor:   SyncCursor{Height: height},
		Ancestry: make([]BlockHeader, 0),
		Depth:    depth,
	}
}

// Advance moves the cursor to the given block, which must be higher than the
// current one.
func (s *SyncState) Advance(header BlockHeader) error {
	if err := validateHash(header.Hash); err != nil {
		return err
	}
	if header.Height <= s.Cursor.Height {
		return fmt.Errorf(
			"%w: block %d is not above cursor %d",
			ErrDataCorrupt, header.Height, s.Cursor.Height,
		)
	}

	s.Cursor = header
	s.Ancestry = append(s.Ancestry, header)
	if len(s.Ancestry) > s.Depth {
		s.Ancestry = append(
			[]BlockHeader{}, s.Ancestry[len(s.Ancestry)-s.Depth:]...,
		)
	}
	s.LastSyncedAt = time.Now().Unix()
	return nil
}

// RewindTo moves the cursor back to the given height, which must be one of
// the remembered headers.
func (s *SyncState) RewindTo(height uint32) error {
	for i := len(s.Ancestry) - 1; i >= 0; i-- {
		if s.Ancestry[i].Height == height {
			s.Ancestry = append([]BlockHeader{}, s.Ancestry[:i+1]...)
			s.Cursor = s.Ancestry[i]
			return nil
		}
	}
	return fmt.Errorf(
		"%w: fork height %d is out of the known ancestry", ErrDataCorrupt, height,
	)
}

// Reset moves the cursor to the given height forgetting the ancestry. It's
// used by rescans.
func (s *SyncState) Reset(height uint32) {
	s.Cursor = SyncCursor{Height: height}
	s.Ancestry = make([]BlockHeader, 0)
	s.Status = SyncStatusIdle
}

// HashAt returns the hash of the remembered block at the given height.
func (s *SyncState) HashAt(height uint32) (string, bool) {
	for i := len(s.Ancestry) - 1; i >= 0; i-- {
		if s.Ancestry[i].Height == height {
			return s.Ancestry[i].Hash, true
		}
	}
	return "", false
}

// Copy ...
func (s *SyncState) Copy() *SyncState {
	cp := *s
	cp.Ancestry = append([]BlockHeader{}, s.Ancestry...)
	return &cp
}

func validateHash(hash string) error {
	if len(hash) != 64 {
		return fmt.Errorf("%w: malformed block hash %q", ErrDataCorrupt, hash)
	}
	if _, err := hex.DecodeString(hash); err != nil {
		return fmt.Errorf("%w: malformed block hash %q", ErrDataCorrupt, hash)
	}
	return nil
}
