package timesync

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"replay-analyzer/internal/matchlog"

	"github.com/tidwall/gjson"
)

const stageReconcile = "reconcile"

var (
	ErrSectionMissing   = errors.New("section not found")
	ErrMalformedTick    = errors.New("tick key is not an integer")
	ErrTickCollision    = errors.New("two ticks collide after shifting")
	ErrNegativeTick     = errors.New("shifted tick is negative")
	ErrOffsetOutOfRange = errors.New("offset magnitude exceeds the configured maximum")
	ErrNegativeOffset   = errors.New("computed offset is negative")
)

// Status is the outcome of a reconciliation pass
type Status string

const (
	StatusAligned     Status = "aligned"
	StatusUnchanged   Status = "unchanged"
	StatusCannotAlign Status = "cannot_align"
)

// Result of Reconcile. Log is the input log itself unless Status is StatusAligned.
type Result struct {
	Log          *matchlog.Log
	Status       Status
	Offset       int64
	CombatEnd    CombatAnchor
	StructureEnd Structure
	Reason       string
}

// LosingTeam is the team whose anchor structure fell first, 0 when unknown
func (r Result) LosingTeam() int64 {
	if !r.StructureEnd.Destroyed {
		return 0
	}
	return r.StructureEnd.Team
}

// ComputeOffset returns the shift that moves the first stream's anchor onto the second's
func ComputeOffset(firstAnchor, secondAnchor int64) int64 {
	return secondAnchor - firstAnchor
}

// Reconcile detects the anchor in both streams and shifts the combat section onto
// the structure stream's time base. Missing anchors are not errors: the input log
// comes back with StatusCannotAlign. Collisions and range violations while shifting are
// returned as errors wrapping a matchlog.StageError, again with the input log.
func Reconcile(l *matchlog.Log, schema matchlog.Schema) (Result, error) {
	res := Result{Log: l, Status: StatusCannotAlign}

	res.CombatEnd = FindCombatEnd(l, schema)
	falls := FindStructureFalls(l, schema)
	end, ok := falls.End()
	res.StructureEnd = end

	switch {
	case !res.CombatEnd.Found:
		res.Reason = "combat anchor: " + res.CombatEnd.Reason
		return res, nil
	case !ok:
		res.Reason = "structure anchor: " + falls.Reason
		return res, nil
	}

	res.Offset = ComputeOffset(res.CombatEnd.Tick, end.DestroyedAt)
	if res.Offset == 0 {
		res.Status = StatusUnchanged
		return res, nil
	}
	if res.Offset < 0 && schema.RejectNegativeOffset {
		err := &matchlog.StageError{
			Stage: stageReconcile,
			Key:   schema.CombatSection,
			Err:   fmt.Errorf("%w: %d", ErrNegativeOffset, res.Offset),
		}
		res.Reason = err.Error()
		return res, err
	}

	shifted, err := ShiftSection(l, schema.CombatSection, res.Offset, schema.MaxOffset)
	if err != nil {
		res.Reason = err.Error()
		return res, err
	}

	res.Log = shifted
	res.Status = StatusAligned
	return res, nil
}

// ShiftSection returns a new log whose tick-keyed section has every key moved by
// offset. Payloads are carried over untouched and keys keep their document order.
// A zero offset returns l itself. limit bounds |offset|; zero disables the bound.
func ShiftSection(l *matchlog.Log, section string, offset, limit int64) (*matchlog.Log, error) {
	if offset == 0 {
		return l, nil
	}
	if limit > 0 && (offset > limit || offset < -limit) {
		return nil, &matchlog.StageError{
			Stage: stageReconcile,
			Key:   section,
			Err:   fmt.Errorf("%w: %d (max %d)", ErrOffsetOutOfRange, offset, limit),
		}
	}

	sec, ok := l.Section(section)
	if !ok || !sec.IsObject() {
		return nil, &matchlog.StageError{Stage: stageReconcile, Key: section, Err: ErrSectionMissing}
	}

	var (
		buf      bytes.Buffer
		failure  error
		occupied = make(map[int64]string)
	)
	buf.WriteByte('{')
	sec.ForEach(func(key, value gjson.Result) bool {
		tick, err := strconv.ParseInt(key.String(), 10, 64)
		if err != nil {
			failure = &matchlog.StageError{Stage: stageReconcile, Key: key.String(), Err: ErrMalformedTick}
			return false
		}

		shifted := tick + offset
		if shifted < 0 {
			failure = &matchlog.StageError{
				Stage: stageReconcile,
				Key:   key.String(),
				Err:   fmt.Errorf("%w: %d%+d", ErrNegativeTick, tick, offset),
			}
			return false
		}
		if other, taken := occupied[shifted]; taken {
			failure = &matchlog.StageError{
				Stage: stageReconcile,
				Key:   key.String(),
				Err:   fmt.Errorf("%w: %q and %q both land on %d", ErrTickCollision, other, key.String(), shifted),
			}
			return false
		}
		occupied[shifted] = key.String()

		if len(occupied) > 1 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(strconv.FormatInt(shifted, 10)))
		buf.WriteByte(':')
		buf.WriteString(value.Raw)
		return true
	})
	if failure != nil {
		return nil, failure
	}
	buf.WriteByte('}')

	out, err := l.WithSection(section, buf.Bytes())
	if err != nil {
		return nil, &matchlog.StageError{Stage: stageReconcile, Key: section, Err: err}
	}
	return out, nil
}
