package pacs

import (
	"errors"
	"reflect"
	"testing"
)

func studyDataset(pid, name, birth, studyUID, studyDate string) *Attributes {
	ds := NewAttributes()
	ds.Set(TagPatientID, pid)
	ds.Set(TagPatientName, name)
	ds.Set(TagPatientBirthDate, birth)
	ds.Set(TagStudyInstanceUID, studyUID)
	ds.Set(TagStudyDate, studyDate)
	return ds
}

func TestMergePatientRecordFirstSighting(t *testing.T) {
	ds := studyDataset("PAT001", "Doe^Jane", "19700101", "1.2.3", "20240105")
	ds.Set("BodyPartExamined", "HEAD")

	rec, err := MergePatientRecord(nil, ds, []string{"BodyPartExamined", "PatientPosition"})
	if err != nil {
		t.Fatalf("MergePatientRecord() error = %v", err)
	}
	if rec.PatientID != "PAT001" || rec.PatientName != "Doe^Jane" || rec.PatientBirthDate != "19700101" {
		t.Errorf("demographics = %q %q %q", rec.PatientID, rec.PatientName, rec.PatientBirthDate)
	}
	if !reflect.DeepEqual(rec.StudyInstanceUIDs, []string{"1.2.3"}) {
		t.Errorf("StudyInstanceUIDs = %v", rec.StudyInstanceUIDs)
	}
	if rec.MostRecentStudyDate != "20240105" {
		t.Errorf("MostRecentStudyDate = %q", rec.MostRecentStudyDate)
	}
	if v, _ := rec.Additional.Get("BodyPartExamined"); v != "HEAD" {
		t.Errorf("additional BodyPartExamined = %q", v)
	}
	if v, ok := rec.Additional.Get("PatientPosition"); !ok || v != "" {
		t.Errorf("missing additional tag not blanked: %q %v", v, ok)
	}
	if rec.PrivateIdentifier != PrivateIdentifierValue {
		t.Errorf("PrivateIdentifier = %q", rec.PrivateIdentifier)
	}
}

func TestMergePatientRecordAccumulatesStudies(t *testing.T) {
	rec, err := MergePatientRecord(nil, studyDataset("PAT001", "Doe^Jane", "", "1.2.3", "20240105"), nil)
	if err != nil {
		t.Fatal(err)
	}
	rec, err = MergePatientRecord(rec, studyDataset("PAT001", "Doe^Jane", "", "1.2.4", "20231201"), nil)
	if err != nil {
		t.Fatal(err)
	}
	// Same study twice must not duplicate.
	rec, err = MergePatientRecord(rec, studyDataset("PAT001", "Doe^Jane", "", "1.2.4", "20231201"), nil)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(rec.StudyInstanceUIDs, []string{"1.2.3", "1.2.4"}) {
		t.Errorf("StudyInstanceUIDs = %v", rec.StudyInstanceUIDs)
	}
	if rec.MostRecentStudyDate != "20240105" {
		t.Errorf("older study advanced the date: %q", rec.MostRecentStudyDate)
	}

	rec, err = MergePatientRecord(rec, studyDataset("PAT001", "Doe^Jane", "", "1.2.5", "20250220"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if rec.MostRecentStudyDate != "20250220" {
		t.Errorf("newer study did not advance the date: %q", rec.MostRecentStudyDate)
	}
}

func TestMergePatientRecordMismatch(t *testing.T) {
	rec, err := MergePatientRecord(nil, studyDataset("PAT001", "Doe^Jane", "", "1.2.3", "20240105"), nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = MergePatientRecord(rec, studyDataset("PAT002", "Roe^John", "", "1.2.6", "20240106"), nil)
	if !errors.Is(err, ErrPatientIDMismatch) {
		t.Fatalf("error = %v, want ErrPatientIDMismatch", err)
	}
}

func TestMergePatientRecordRequiresIdentifiers(t *testing.T) {
	noPatient := NewAttributes()
	noPatient.Set(TagStudyInstanceUID, "1.2.3")
	if _, err := MergePatientRecord(nil, noPatient, nil); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("error = %v, want ErrInvalidRecord", err)
	}

	noStudy := NewAttributes()
	noStudy.Set(TagPatientID, "PAT001")
	if _, err := MergePatientRecord(nil, noStudy, nil); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("error = %v, want ErrInvalidRecord", err)
	}

	existing := &PatientRecord{}
	if _, err := MergePatientRecord(existing, studyDataset("PAT001", "", "", "1.2.3", ""), nil); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("error = %v, want ErrInvalidRecord", err)
	}
}

func TestMergePatientRecordEmptyDateNeverAdvances(t *testing.T) {
	rec, err := MergePatientRecord(nil, studyDataset("PAT001", "Doe^Jane", "", "1.2.3", ""), nil)
	if err != nil {
		t.Fatal(err)
	}
	if rec.MostRecentStudyDate != "" {
		t.Fatalf("MostRecentStudyDate = %q, want empty", rec.MostRecentStudyDate)
	}
	rec, err = MergePatientRecord(rec, studyDataset("PAT001", "Doe^Jane", "", "1.2.4", "20240105"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if rec.MostRecentStudyDate != "20240105" {
		t.Fatalf("MostRecentStudyDate = %q", rec.MostRecentStudyDate)
	}
	rec, err = MergePatientRecord(rec, studyDataset("PAT001", "Doe^Jane", "", "1.2.5", ""), nil)
	if err != nil {
		t.Fatal(err)
	}
	if rec.MostRecentStudyDate != "20240105" {
		t.Errorf("empty date replaced the most recent date: %q", rec.MostRecentStudyDate)
	}
}
