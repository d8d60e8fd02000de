package service

import (
	"sort"

	"vigia_backend/internal/model"
)

const (
	ReasonTrackProgressNotFound = "track progress not found"
	ReasonSequenceNotFound      = "sequence not found"
	ReasonPreviousNotCompleted  = "previous sequence not completed"
)

// AccessDecision answers whether a learner may open a sequence.
type AccessDecision struct {
	CanAccess bool   `json:"canAccess"`
	Reason    string `json:"reason,omitempty"`
}

// FlattenActiveSequences orders the active sequences of active sections into one
// list: by section order, then by sequence order inside the section.
func FlattenActiveSequences(sections []model.Section) []model.Sequence {
	active := make([]model.Section, 0, len(sections))
	for _, sec := range sections {
		if sec.Active {
			active = append(active, sec)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Order != active[j].Order {
			return active[i].Order < active[j].Order
		}
		return active[i].ID < active[j].ID
	})

	var out []model.Sequence
	for _, sec := range active {
		out = append(out, activeSequences(sec)...)
	}
	return out
}

func activeSequences(sec model.Section) []model.Sequence {
	seqs := make([]model.Sequence, 0, len(sec.Sequences))
	for _, seq := range sec.Sequences {
		if seq.Active {
			seqs = append(seqs, seq)
		}
	}
	sort.SliceStable(seqs, func(i, j int) bool {
		if seqs[i].Order != seqs[j].Order {
			return seqs[i].Order < seqs[j].Order
		}
		return seqs[i].ID < seqs[j].ID
	})
	return seqs
}

// ComputeSequenceLocks marks a sequence locked when any sequence before it in
// the flattened order is not completed. The first sequence is never locked.
func ComputeSequenceLocks(sections []model.Section, statuses map[uint]model.ProgressStatus) map[uint]bool {
	locks := make(map[uint]bool)
	blocked := false
	for _, seq := range FlattenActiveSequences(sections) {
		locks[seq.ID] = blocked
		if statuses[seq.ID] != model.ProgressCompleted {
			blocked = true
		}
	}
	return locks
}

// previousInSection returns the active sequence right before seq in its own
// section, or nil when seq is the first one.
func previousInSection(sections []model.Section, seq *model.Sequence) *model.Sequence {
	for _, sec := range sections {
		if sec.ID != seq.SectionID {
			continue
		}
		var prev *model.Sequence
		for _, s := range activeSequences(sec) {
			if s.ID == seq.ID {
				return prev
			}
			s := s
			prev = &s
		}
	}
	return nil
}

func statusMap(rows []model.SequenceProgress) map[uint]model.ProgressStatus {
	m := make(map[uint]model.ProgressStatus, len(rows))
	for _, r := range rows {
		m[r.SequenceID] = r.Status
	}
	return m
}
