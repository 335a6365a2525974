package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/healthharbor/prevcare/pkg/alerts"
	"github.com/healthharbor/prevcare/pkg/clinical"
	"github.com/healthharbor/prevcare/pkg/measure"
	"github.com/healthharbor/prevcare/pkg/member"
)

// Memory is an in-process Runner with the same transactional semantics as
// Postgres: per-member locking and rollback on error. It backs the engine and
// coordinator tests without a database.
type Memory struct {
	mu      sync.Mutex
	members map[string]*memberRecord
	nextKey int64
}

type eventKey struct {
	code string
	at   int64
}

type memberRecord struct {
	mu     sync.Mutex
	m      member.Member
	labs   map[eventKey]clinical.LabResult
	imms   map[eventKey]clinical.Immunization
	alerts map[string]alerts.CareAlert
}

func NewMemory() *Memory {
	return &Memory{members: make(map[string]*memberRecord)}
}

func (s *Memory) EnrollMember(ctx context.Context) (member.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	maxSeq := 0
	for id := range s.members {
		if seq, err := member.SequenceOf(id); err == nil && seq > maxSeq {
			maxSeq = seq
		}
	}
	seq := maxSeq + 1
	publicID := member.FormatPublicID(seq)
	now := time.Now().UTC()

	if rec, ok := s.members[publicID]; ok {
		rec.mu.Lock()
		rec.m.Sex = member.SexForSequence(seq)
		rec.m.UpdatedAt = now
		m := rec.m
		rec.mu.Unlock()
		return m, nil
	}

	s.nextKey++
	rec := &memberRecord{
		m: member.Member{
			MemberID:  s.nextKey,
			PublicID:  publicID,
			Sex:       member.SexForSequence(seq),
			CreatedAt: now,
			UpdatedAt: now,
		},
		labs:   make(map[eventKey]clinical.LabResult),
		imms:   make(map[eventKey]clinical.Immunization),
		alerts: make(map[string]alerts.CareAlert),
	}
	s.members[publicID] = rec
	return rec.m, nil
}

func (s *Memory) RunMemberTx(ctx context.Context, publicID string, fn func(ctx context.Context, tx MemberTx) error) error {
	s.mu.Lock()
	rec, ok := s.members[publicID]
	s.mu.Unlock()
	if !ok {
		return member.ErrMemberNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	snapshot := rec.clone()
	if err := fn(ctx, &memTx{rec: rec}); err != nil {
		rec.restore(snapshot)
		return err
	}
	return nil
}

// Alerts reads a member's alert rows outside any transaction, ordered by type.
func (s *Memory) Alerts(publicID string) ([]alerts.CareAlert, error) {
	s.mu.Lock()
	rec, ok := s.members[publicID]
	s.mu.Unlock()
	if !ok {
		return nil, member.ErrMemberNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.sortedAlerts(), nil
}

// EventCounts reports how many lab and immunization rows a member holds.
func (s *Memory) EventCounts(publicID string) (labs int, imms int, err error) {
	s.mu.Lock()
	rec, ok := s.members[publicID]
	s.mu.Unlock()
	if !ok {
		return 0, 0, member.ErrMemberNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return len(rec.labs), len(rec.imms), nil
}

func (r *memberRecord) clone() *memberRecord {
	cp := &memberRecord{
		m:      r.m,
		labs:   make(map[eventKey]clinical.LabResult, len(r.labs)),
		imms:   make(map[eventKey]clinical.Immunization, len(r.imms)),
		alerts: make(map[string]alerts.CareAlert, len(r.alerts)),
	}
	for k, v := range r.labs {
		cp.labs[k] = v
	}
	for k, v := range r.imms {
		cp.imms[k] = v
	}
	for k, v := range r.alerts {
		cp.alerts[k] = v
	}
	return cp
}

func (r *memberRecord) restore(snapshot *memberRecord) {
	r.m = snapshot.m
	r.labs = snapshot.labs
	r.imms = snapshot.imms
	r.alerts = snapshot.alerts
}

func (r *memberRecord) sortedAlerts() []alerts.CareAlert {
	rows := make([]alerts.CareAlert, 0, len(r.alerts))
	for _, a := range r.alerts {
		rows = append(rows, a)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Type < rows[j].Type })
	return rows
}

type memTx struct {
	rec *memberRecord
}

func (t *memTx) Member() member.Member {
	return t.rec.m
}

func (t *memTx) UpsertLabResult(ctx context.Context, in clinical.LabResultInput) error {
	key := eventKey{code: in.Code, at: in.CollectedAt.UTC().UnixNano()}
	if existing, ok := t.rec.labs[key]; ok {
		existing.ValueNum = in.ValueNum
		existing.Unit = in.Unit
		t.rec.labs[key] = existing
		return nil
	}
	t.rec.labs[key] = clinical.LabResult{
		MemberID:    t.rec.m.MemberID,
		Code:        in.Code,
		CollectedAt: in.CollectedAt.UTC(),
		ValueNum:    in.ValueNum,
		Unit:        in.Unit,
		CreatedAt:   time.Now().UTC(),
	}
	return nil
}

func (t *memTx) UpsertImmunization(ctx context.Context, in clinical.ImmunizationInput) error {
	key := eventKey{code: in.Code, at: in.AdministeredAt.UTC().UnixNano()}
	if _, ok := t.rec.imms[key]; ok {
		return nil
	}
	t.rec.imms[key] = clinical.Immunization{
		MemberID:       t.rec.m.MemberID,
		Code:           in.Code,
		AdministeredAt: in.AdministeredAt.UTC(),
		CreatedAt:      time.Now().UTC(),
	}
	return nil
}

func (t *memTx) State() alerts.MemberState {
	return &memState{rec: t.rec}
}

type memState struct {
	rec *memberRecord
}

func (s *memState) LatestQualifying(ctx context.Context, def measure.Definition) (time.Time, bool, error) {
	var latest time.Time
	found := false

	switch def.Source {
	case measure.SourceLab:
		for key, lab := range s.rec.labs {
			if key.code == def.Code && (!found || lab.CollectedAt.After(latest)) {
				latest = lab.CollectedAt
				found = true
			}
		}
	case measure.SourceImmunization:
		for key, imm := range s.rec.imms {
			if key.code == def.Code && (!found || imm.AdministeredAt.After(latest)) {
				latest = imm.AdministeredAt
				found = true
			}
		}
	}

	return latest, found, nil
}

func (s *memState) CurrentAlerts(ctx context.Context) ([]alerts.CareAlert, error) {
	return s.rec.sortedAlerts(), nil
}

func (s *memState) PutAlert(ctx context.Context, alert alerts.CareAlert) error {
	alert.MemberID = s.rec.m.MemberID
	s.rec.alerts[alert.Type] = alert
	return nil
}
