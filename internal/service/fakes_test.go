package service

import (
	"context"
	"sort"
	"time"

	"vigia_backend/internal/model"
	"vigia_backend/internal/util"

	"gorm.io/datatypes"
)

type fakeTx struct{ calls int }

func (f *fakeTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	return fn(ctx)
}

type fakeTracks struct {
	cycles    map[uint]model.TrackCycle
	sections  map[uint][]model.Section // by track id
	sequences map[uint]model.Sequence
}

func (f *fakeTracks) FindTrackCycleByID(_ context.Context, id uint) (*model.TrackCycle, error) {
	c, ok := f.cycles[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (f *fakeTracks) FindSequenceByID(_ context.Context, id uint) (*model.Sequence, error) {
	seq, ok := f.sequences[id]
	if !ok {
		return nil, nil
	}
	for _, secs := range f.sections {
		for _, sec := range secs {
			if sec.ID == seq.SectionID {
				sec := sec
				sec.Sequences = nil
				seq.Section = &sec
			}
		}
	}
	return &seq, nil
}

func (f *fakeTracks) ListActiveSections(_ context.Context, trackID uint) ([]model.Section, error) {
	var out []model.Section
	for _, sec := range f.sections[trackID] {
		if !sec.Active {
			continue
		}
		var seqs []model.Sequence
		for _, seq := range f.sequences {
			if seq.SectionID == sec.ID && seq.Active {
				seqs = append(seqs, seq)
			}
		}
		sort.Slice(seqs, func(i, j int) bool { return seqs[i].Order < seqs[j].Order })
		sec.Sequences = seqs
		out = append(out, sec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (f *fakeTracks) ListActiveMandatoryCycles(_ context.Context, contextID uint, now time.Time) ([]model.TrackCycle, error) {
	var out []model.TrackCycle
	for _, c := range f.cycles {
		if c.ContextID != contextID || !c.Active || c.Status != model.TrackCycleActive {
			continue
		}
		if c.StartDate.After(now) || c.EndDate.Before(now) {
			continue
		}
		if c.MandatorySlug == nil || *c.MandatorySlug == "" {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.After(out[j].StartDate) })
	return out, nil
}

type fakeParticipations struct {
	rows  map[uint]model.Participation
	locks int
}

func (f *fakeParticipations) FindByID(_ context.Context, id uint) (*model.Participation, error) {
	p, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakeParticipations) LockByID(ctx context.Context, id uint) (*model.Participation, error) {
	f.locks++
	return f.FindByID(ctx, id)
}

type fakeForms struct {
	versions map[uint]model.FormVersion
}

func (f *fakeForms) FindVersionByID(_ context.Context, id uint) (*model.FormVersion, error) {
	v, ok := f.versions[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

type fakeProgress struct {
	nextID uint
	tracks map[uint]model.TrackProgress
	seqs   map[uint]model.SequenceProgress
	cycles *fakeTracks
	locked []uint
	saves  int

	// afterList runs once after the next ListSequenceProgress has taken its snapshot.
	afterList func()
}

func newFakeProgress(cycles *fakeTracks) *fakeProgress {
	return &fakeProgress{
		tracks: map[uint]model.TrackProgress{},
		seqs:   map[uint]model.SequenceProgress{},
		cycles: cycles,
	}
}

func (f *fakeProgress) id() uint {
	f.nextID++
	return f.nextID
}

func (f *fakeProgress) FindTrackProgressByID(_ context.Context, id uint) (*model.TrackProgress, error) {
	tp, ok := f.tracks[id]
	if !ok {
		return nil, nil
	}
	return &tp, nil
}

func (f *fakeProgress) LockTrackProgress(ctx context.Context, id uint) (*model.TrackProgress, error) {
	f.locked = append(f.locked, id)
	return f.FindTrackProgressByID(ctx, id)
}

func (f *fakeProgress) FindTrackProgress(_ context.Context, participationID, trackCycleID uint) (*model.TrackProgress, error) {
	for _, tp := range f.tracks {
		if tp.ParticipationID == participationID && tp.TrackCycleID == trackCycleID {
			tp := tp
			return &tp, nil
		}
	}
	return nil, nil
}

func (f *fakeProgress) CreateTrackProgress(_ context.Context, tp *model.TrackProgress) error {
	for _, existing := range f.tracks {
		if existing.ParticipationID == tp.ParticipationID && existing.TrackCycleID == tp.TrackCycleID {
			return util.ErrConflict
		}
	}
	tp.ID = f.id()
	stored := *tp
	stored.SequenceProgresses = nil
	f.tracks[tp.ID] = stored
	return nil
}

func (f *fakeProgress) SaveTrackProgress(_ context.Context, tp *model.TrackProgress) error {
	f.saves++
	stored := *tp
	stored.SequenceProgresses = nil
	f.tracks[tp.ID] = stored
	return nil
}

func (f *fakeProgress) CreateSequenceProgresses(_ context.Context, rows []*model.SequenceProgress) error {
	for _, r := range rows {
		r.ID = f.id()
		f.seqs[r.ID] = *r
	}
	return nil
}

func (f *fakeProgress) FindSequenceProgress(_ context.Context, trackProgressID, sequenceID uint) (*model.SequenceProgress, error) {
	for _, sp := range f.seqs {
		if sp.TrackProgressID == trackProgressID && sp.SequenceID == sequenceID {
			sp := sp
			return &sp, nil
		}
	}
	return nil, nil
}

func (f *fakeProgress) ListSequenceProgress(_ context.Context, trackProgressID uint) ([]model.SequenceProgress, error) {
	var out []model.SequenceProgress
	for _, sp := range f.seqs {
		if sp.TrackProgressID == trackProgressID {
			out = append(out, sp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if hook := f.afterList; hook != nil {
		f.afterList = nil
		hook()
	}
	return out, nil
}

func (f *fakeProgress) UpsertSequenceProgress(ctx context.Context, trackProgressID, sequenceID uint) (*model.SequenceProgress, error) {
	if sp, _ := f.FindSequenceProgress(ctx, trackProgressID, sequenceID); sp != nil {
		return sp, nil
	}
	row := model.SequenceProgress{
		TrackProgressID: trackProgressID,
		SequenceID:      sequenceID,
		Status:          model.ProgressNotStarted,
	}
	row.ID = f.id()
	f.seqs[row.ID] = row
	return &row, nil
}

func (f *fakeProgress) SaveSequenceProgress(_ context.Context, sp *model.SequenceProgress) error {
	f.seqs[sp.ID] = *sp
	return nil
}

func (f *fakeProgress) HasCompletedForSlug(_ context.Context, participationID uint, slug string) (bool, error) {
	for _, tp := range f.tracks {
		if tp.ParticipationID != participationID || tp.Status != model.ProgressCompleted {
			continue
		}
		c, ok := f.cycles.cycles[tp.TrackCycleID]
		if ok && c.MandatorySlug != nil && *c.MandatorySlug == slug {
			return true, nil
		}
	}
	return false, nil
}

type fakeSubmissions struct {
	nextID uint
	rows   map[uint]model.QuizSubmission
}

func newFakeSubmissions() *fakeSubmissions {
	return &fakeSubmissions{rows: map[uint]model.QuizSubmission{}}
}

func (f *fakeSubmissions) FindByID(_ context.Context, id uint) (*model.QuizSubmission, error) {
	s, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (f *fakeSubmissions) CountActive(_ context.Context, participationID, formVersionID uint) (int64, error) {
	var n int64
	for _, s := range f.rows {
		if s.ParticipationID == participationID && s.FormVersionID == formVersionID && s.Active {
			n++
		}
	}
	return n, nil
}

func (f *fakeSubmissions) MaxAttemptNumber(_ context.Context, participationID, formVersionID uint) (int, error) {
	highest := 0
	for _, s := range f.rows {
		if s.ParticipationID == participationID && s.FormVersionID == formVersionID && s.AttemptNumber > highest {
			highest = s.AttemptNumber
		}
	}
	return highest, nil
}

func (f *fakeSubmissions) Create(_ context.Context, s *model.QuizSubmission) error {
	f.nextID++
	s.ID = f.nextID
	f.rows[s.ID] = *s
	return nil
}

func (f *fakeSubmissions) Save(_ context.Context, s *model.QuizSubmission) error {
	f.rows[s.ID] = *s
	return nil
}

func (f *fakeSubmissions) ListByParticipationAndVersion(_ context.Context, participationID, formVersionID uint) ([]model.QuizSubmission, error) {
	var out []model.QuizSubmission
	for _, s := range f.rows {
		if s.ParticipationID == participationID && s.FormVersionID == formVersionID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptNumber < out[j].AttemptNumber })
	return out, nil
}

type fakeLockEntry struct {
	gen   int64
	locks map[uint]bool
}

// fakeLockCache mirrors the generation rules of the redis cache.
type fakeLockCache struct {
	entries       map[uint]fakeLockEntry
	gens          map[uint]int64
	hits          int
	invalidations int
}

func newFakeLockCache() *fakeLockCache {
	return &fakeLockCache{entries: map[uint]fakeLockEntry{}, gens: map[uint]int64{}}
}

func (f *fakeLockCache) Get(_ context.Context, id uint) (map[uint]bool, int64, bool) {
	gen := f.gens[id]
	e, ok := f.entries[id]
	if !ok || e.gen != gen {
		return nil, gen, false
	}
	f.hits++
	return e.locks, gen, true
}

func (f *fakeLockCache) Set(_ context.Context, id uint, gen int64, locks map[uint]bool) {
	f.entries[id] = fakeLockEntry{gen: gen, locks: locks}
}

func (f *fakeLockCache) Invalidate(_ context.Context, id uint) {
	f.invalidations++
	f.gens[id]++
	delete(f.entries, id)
}

// fixture is one context with a participation and a cycle over a two-step track:
// content sequence 1 followed by quiz sequence 2 answering form 5.
type fixture struct {
	tx             *fakeTx
	tracks         *fakeTracks
	participations *fakeParticipations
	forms          *fakeForms
	progress       *fakeProgress
	submissions    *fakeSubmissions
	locks          *fakeLockCache
	clock          time.Time
}

const (
	fxContext       uint = 1
	fxUser          uint = 10
	fxParticipation uint = 20
	fxTrack         uint = 30
	fxSection       uint = 40
	fxContentSeq    uint = 1
	fxQuizSeq       uint = 2
	fxForm          uint = 5
	fxVersion       uint = 50
	fxCycle         uint = 100
)

func uintPtr(v uint) *uint           { return &v }
func intPtr(v int) *int              { return &v }
func strPtr(v string) *string        { return &v }
func boolPtr(v bool) *bool           { return &v }
func timePtr(v time.Time) *time.Time { return &v }

func base(id uint) model.BaseModel { return model.BaseModel{ID: id} }

func newFixture() *fixture {
	clock := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	tracks := &fakeTracks{
		cycles: map[uint]model.TrackCycle{
			fxCycle: {
				BaseModel: base(fxCycle), TrackID: fxTrack, ContextID: fxContext, Name: "2026 intake",
				StartDate: clock.AddDate(0, -1, 0), EndDate: clock.AddDate(0, 1, 0),
				Status: model.TrackCycleActive, Active: true,
			},
		},
		sections: map[uint][]model.Section{
			fxTrack: {{BaseModel: base(fxSection), TrackID: fxTrack, Title: "Basics", Order: 1, Active: true}},
		},
		sequences: map[uint]model.Sequence{
			fxContentSeq: {BaseModel: base(fxContentSeq), SectionID: fxSection, Title: "Read", Order: 1, ContentID: uintPtr(7), Active: true},
			fxQuizSeq:    {BaseModel: base(fxQuizSeq), SectionID: fxSection, Title: "Check", Order: 2, FormID: uintPtr(fxForm), Active: true},
		},
	}
	return &fixture{
		tx:     &fakeTx{},
		tracks: tracks,
		participations: &fakeParticipations{rows: map[uint]model.Participation{
			fxParticipation: {BaseModel: base(fxParticipation), UserID: fxUser, ContextID: fxContext, Active: true},
		}},
		forms: &fakeForms{versions: map[uint]model.FormVersion{
			fxVersion: quizVersion(fxVersion, fxForm, model.FormTypeQuiz, `{"fields":[{"name":"q1","type":"select","points":1,"correctAnswer":"a"}]}`),
		}},
		progress:    newFakeProgress(tracks),
		submissions: newFakeSubmissions(),
		locks:       newFakeLockCache(),
		clock:       clock,
	}
}

func quizVersion(id, formID uint, formType model.FormType, definition string) model.FormVersion {
	return model.FormVersion{
		BaseModel:  base(id),
		FormID:     formID,
		Form:       &model.Form{BaseModel: base(formID), Name: "quiz", Type: formType, Active: true},
		Version:    1,
		Definition: datatypes.JSON(definition),
		Active:     true,
	}
}

func (f *fixture) trackService() *TrackProgressService {
	s := NewTrackProgressService(f.tx, f.tracks, f.participations, f.forms, f.progress, f.submissions, f.locks, true)
	s.now = func() time.Time { return f.clock }
	return s
}

func (f *fixture) submissionService() *QuizSubmissionService {
	s := NewQuizSubmissionService(f.tx, f.participations, f.forms, f.submissions)
	s.now = func() time.Time { return f.clock }
	return s
}
