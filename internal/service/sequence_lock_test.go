package service

import (
	"testing"

	"vigia_backend/internal/model"
)

func curriculum() []model.Section {
	return []model.Section{
		{BaseModel: base(2), Order: 2, Active: true, Sequences: []model.Sequence{
			{BaseModel: base(21), SectionID: 2, Order: 1, Active: true},
			{BaseModel: base(22), SectionID: 2, Order: 2, Active: true},
		}},
		{BaseModel: base(1), Order: 1, Active: true, Sequences: []model.Sequence{
			{BaseModel: base(12), SectionID: 1, Order: 2, Active: true},
			{BaseModel: base(11), SectionID: 1, Order: 1, Active: true},
			{BaseModel: base(13), SectionID: 1, Order: 3, Active: false},
		}},
		{BaseModel: base(3), Order: 0, Active: false, Sequences: []model.Sequence{
			{BaseModel: base(31), SectionID: 3, Order: 1, Active: true},
		}},
	}
}

func TestFlattenActiveSequences(t *testing.T) {
	got := FlattenActiveSequences(curriculum())
	want := []uint{11, 12, 21, 22}
	if len(got) != len(want) {
		t.Fatalf("got %d sequences, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: got %d want %d", i, got[i].ID, id)
		}
	}
}

func TestComputeSequenceLocks(t *testing.T) {
	tests := []struct {
		name     string
		statuses map[uint]model.ProgressStatus
		want     map[uint]bool
	}{
		{
			name:     "nothing done",
			statuses: nil,
			want:     map[uint]bool{11: false, 12: true, 21: true, 22: true},
		},
		{
			name:     "first done",
			statuses: map[uint]model.ProgressStatus{11: model.ProgressCompleted},
			want:     map[uint]bool{11: false, 12: false, 21: true, 22: true},
		},
		{
			name: "gap keeps later locked",
			statuses: map[uint]model.ProgressStatus{
				11: model.ProgressCompleted,
				12: model.ProgressInProgress,
				21: model.ProgressCompleted,
			},
			want: map[uint]bool{11: false, 12: false, 21: true, 22: true},
		},
		{
			name: "all done",
			statuses: map[uint]model.ProgressStatus{
				11: model.ProgressCompleted, 12: model.ProgressCompleted,
				21: model.ProgressCompleted, 22: model.ProgressCompleted,
			},
			want: map[uint]bool{11: false, 12: false, 21: false, 22: false},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeSequenceLocks(curriculum(), tc.statuses)
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			for id, locked := range tc.want {
				if got[id] != locked {
					t.Fatalf("sequence %d locked=%v want %v", id, got[id], locked)
				}
			}
		})
	}
}

func TestPreviousInSection(t *testing.T) {
	sections := curriculum()
	if prev := previousInSection(sections, &model.Sequence{BaseModel: base(11), SectionID: 1}); prev != nil {
		t.Fatalf("first sequence has no predecessor, got %d", prev.ID)
	}
	if prev := previousInSection(sections, &model.Sequence{BaseModel: base(12), SectionID: 1}); prev == nil || prev.ID != 11 {
		t.Fatalf("want 11, got %v", prev)
	}
	// the first sequence of a section ignores earlier sections
	if prev := previousInSection(sections, &model.Sequence{BaseModel: base(21), SectionID: 2}); prev != nil {
		t.Fatalf("want nil, got %d", prev.ID)
	}
}
