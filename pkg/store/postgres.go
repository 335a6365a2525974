package store

import (
	"context"
	"time"

	"github.com/healthharbor/prevcare/pkg/alerts"
	"github.com/healthharbor/prevcare/pkg/clinical"
	"github.com/healthharbor/prevcare/pkg/measure"
	"github.com/healthharbor/prevcare/pkg/member"
	"gorm.io/gorm"
)

// Postgres runs member transactions over gorm. Per-member serialization comes
// from the SELECT ... FOR UPDATE on the member row: two ingests for the same
// member queue on the row lock, while different members never contend.
type Postgres struct {
	db *gorm.DB
}

func NewPostgres(db *gorm.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) AutoMigrate() error {
	if err := member.NewRepository(p.db).AutoMigrate(); err != nil {
		return err
	}
	if err := clinical.NewRepository(p.db).AutoMigrate(); err != nil {
		return err
	}
	return alerts.NewRepository(p.db).AutoMigrate()
}

func (p *Postgres) RunMemberTx(ctx context.Context, publicID string, fn func(ctx context.Context, tx MemberTx) error) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := member.NewRepository(tx).GetForUpdate(ctx, publicID)
		if err != nil {
			return err
		}
		return fn(ctx, &pgMemberTx{tx: tx, m: m})
	})
}

// EnrollMember allocates the next public identifier inside a transaction.
// Allocation is best effort under concurrency; a collision lands on the
// upsert path instead of failing.
func (p *Postgres) EnrollMember(ctx context.Context) (member.Member, error) {
	var enrolled member.Member
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := member.NewRepository(tx)

		publicID, err := repo.NextPublicID(ctx)
		if err != nil {
			return err
		}
		seq, err := member.SequenceOf(publicID)
		if err != nil {
			return err
		}

		enrolled, err = repo.Upsert(ctx, publicID, member.SexForSequence(seq))
		return err
	})
	if err != nil {
		return member.Member{}, err
	}
	return enrolled, nil
}

type pgMemberTx struct {
	tx *gorm.DB
	m  member.Member
}

func (t *pgMemberTx) Member() member.Member {
	return t.m
}

func (t *pgMemberTx) UpsertLabResult(ctx context.Context, in clinical.LabResultInput) error {
	return clinical.NewRepository(t.tx).UpsertLabResult(ctx, t.m.MemberID, in)
}

func (t *pgMemberTx) UpsertImmunization(ctx context.Context, in clinical.ImmunizationInput) error {
	return clinical.NewRepository(t.tx).UpsertImmunization(ctx, t.m.MemberID, in)
}

func (t *pgMemberTx) State() alerts.MemberState {
	return &pgState{tx: t.tx, memberID: t.m.MemberID}
}

type pgState struct {
	tx       *gorm.DB
	memberID int64
}

func (s *pgState) LatestQualifying(ctx context.Context, def measure.Definition) (time.Time, bool, error) {
	return clinical.NewRepository(s.tx).LatestQualifying(ctx, s.memberID, def)
}

func (s *pgState) CurrentAlerts(ctx context.Context) ([]alerts.CareAlert, error) {
	return alerts.NewRepository(s.tx).ForMember(ctx, s.memberID)
}

func (s *pgState) PutAlert(ctx context.Context, alert alerts.CareAlert) error {
	return alerts.NewRepository(s.tx).Upsert(ctx, s.memberID, alert)
}
