package models

import "testing"

func TestAddSubjectKeepsFirstSeenOrder(t *testing.T) {
	record := &StudentRecord{PIN: "22008-CM-001"}

	record.AddSubject("103", SubjectMarks{Total: 55})
	record.AddSubject("101", SubjectMarks{Total: 85})
	record.AddSubject("103", SubjectMarks{Total: 60})

	if len(record.Subjects) != 2 {
		t.Fatalf("subjects = %v, want two entries", record.Subjects)
	}
	if record.Subjects[0] != "103" || record.Subjects[1] != "101" {
		t.Fatalf("order = %v, want first-seen order", record.Subjects)
	}
	if record.Marks["103"].Total != 60 {
		t.Fatalf("re-added subject should keep the latest marks, got %d", record.Marks["103"].Total)
	}
}
