package pacs

import "fmt"

// PrivateIdentifierValue marks records produced by this system's merge.
const PrivateIdentifierValue = "pacsgo"

// MergePatientRecord folds one query response dataset into a patient
// record. The dataset must carry both a patient identifier and a study
// identifier. With existing nil a fresh record is built: the demographic
// attributes are copied, the dataset's study UID seeds the study set and
// the private marker is stamped. On subsequent datasets the patient
// identifiers must agree and the study UID is added to the set once.
// On every call the most recent study date advances when the incoming
// date is non-empty and sorts later; empty dates never replace anything.
// Additional tags are copied into the record's extra attributes, blank
// when absent, so every merged record exposes the same keys.
func MergePatientRecord(existing *PatientRecord, ds *Attributes, additionalTags []string) (*PatientRecord, error) {
	patientID, ok := ds.Get(TagPatientID)
	if !ok || patientID == "" {
		return nil, fmt.Errorf("%w: dataset has no %s", ErrInvalidRecord, TagPatientID)
	}
	studyUID, ok := ds.Get(TagStudyInstanceUID)
	if !ok || studyUID == "" {
		return nil, fmt.Errorf("%w: dataset has no %s", ErrInvalidRecord, TagStudyInstanceUID)
	}
	studyDate := ds.GetDefault(TagStudyDate, "")

	if existing == nil {
		rec := &PatientRecord{
			PatientID:           patientID,
			PatientName:         ds.GetDefault(TagPatientName, ""),
			PatientBirthDate:    ds.GetDefault(TagPatientBirthDate, ""),
			StudyInstanceUIDs:   []string{studyUID},
			MostRecentStudyDate: studyDate,
			PrivateIdentifier:   PrivateIdentifierValue,
			Additional:          NewAttributes(),
		}
		if err := CopyAttributes(rec.Additional, ds, additionalTags, MissingEmpty); err != nil {
			return nil, err
		}
		return rec, nil
	}

	if existing.PatientID == "" {
		return nil, fmt.Errorf("%w: record has no %s", ErrInvalidRecord, TagPatientID)
	}
	if existing.PatientID != patientID {
		return nil, fmt.Errorf("%w: record %q, dataset %q", ErrPatientIDMismatch, existing.PatientID, patientID)
	}

	if !containsString(existing.StudyInstanceUIDs, studyUID) {
		existing.StudyInstanceUIDs = append(existing.StudyInstanceUIDs, studyUID)
	}
	// DA values are YYYYMMDD, so lexicographic order is chronological.
	if studyDate != "" && studyDate > existing.MostRecentStudyDate {
		existing.MostRecentStudyDate = studyDate
	}
	return existing, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
