package resolve

import (
	"sort"
	"time"

	"github.com/roach88/wardsync/internal/model"
	"github.com/roach88/wardsync/internal/record"
)

// MergeFunc combines the local payload with the server record.
type MergeFunc func(local, server record.Record) record.Record

// Record fields the policies inspect.
const (
	FieldMedicalHistory   = "medicalHistory"
	FieldMedications      = "medications"
	FieldNotes            = "notes"
	FieldNotesLastUpdated = "notesLastUpdated"
	FieldDate             = "date"
)

// ContactFields are taken from the newer side of a patient merge.
var ContactFields = []string{"phone", "email", "address"}

// Policies is the merge table. It covers every model.EntityType.
var Policies = map[model.EntityType]MergeFunc{
	model.EntityPatient:      MergePatient,
	model.EntityAppointment:  LastWriterWins,
	model.EntityPrescription: MergePrescription,
	model.EntityLabTest:      MergeLabTest,
	model.EntityDoctor:       LastWriterWins,
	model.EntityBilling:      LastWriterWins,
	model.EntityInventory:    LastWriterWins,
}

// localNewer reports whether local's lastUpdated is strictly after server's.
func localNewer(local, server record.Record) bool {
	return local.LastUpdated().After(server.LastUpdated())
}

// LastWriterWins keeps the server record unless local is strictly newer, in
// which case local replaces it but keeps the server-assigned id.
func LastWriterWins(local, server record.Record) record.Record {
	if !localNewer(local, server) {
		return server.Clone()
	}
	out := local.Clone()
	if id, ok := server[record.FieldID]; ok {
		out[record.FieldID] = id
	}
	return out
}

// MergePatient unions medical history and picks contact fields from the
// newer side.
func MergePatient(local, server record.Record) record.Record {
	out := server.Clone()
	newer := localNewer(local, server)

	history := unionByID(server.Records(FieldMedicalHistory), local.Records(FieldMedicalHistory))
	sortNewestFirst(history, FieldDate)
	if history != nil || hasField(server, local, FieldMedicalHistory) {
		out.SetRecords(FieldMedicalHistory, history)
	}

	if newer {
		for _, f := range ContactFields {
			if v, ok := local[f]; ok {
				out[f] = cloneField(v)
			}
		}
	}
	keepLatest(out, local, server)
	return out
}

// MergePrescription unions medication line items; notes follow the newer
// side.
func MergePrescription(local, server record.Record) record.Record {
	out := server.Clone()

	meds := unionByID(server.Records(FieldMedications), local.Records(FieldMedications))
	if meds != nil || hasField(server, local, FieldMedications) {
		out.SetRecords(FieldMedications, meds)
	}

	if localNewer(local, server) {
		if v, ok := local[FieldNotes]; ok {
			out[FieldNotes] = cloneField(v)
		}
	}
	keepLatest(out, local, server)
	return out
}

// MergeLabTest keeps the server record except for notes, which come from
// local when its notesLastUpdated is newer.
func MergeLabTest(local, server record.Record) record.Record {
	out := server.Clone()

	lt, lok := local.Time(FieldNotesLastUpdated)
	st, sok := server.Time(FieldNotesLastUpdated)
	if lok && (!sok || lt.After(st)) {
		out[FieldNotes] = cloneField(local[FieldNotes])
		out[FieldNotesLastUpdated] = local[FieldNotesLastUpdated]
	}
	return out
}

// unionByID returns primary followed by the secondary items whose id is not
// in primary. Items without an id are compared by their canonical encoding.
func unionByID(primary, secondary []record.Record) []record.Record {
	if len(primary) == 0 && len(secondary) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(primary)+len(secondary))
	out := make([]record.Record, 0, len(primary)+len(secondary))
	for _, group := range [][]record.Record{primary, secondary} {
		for _, item := range group {
			k := itemKey(item)
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, item.Clone())
		}
	}
	return out
}

func itemKey(item record.Record) string {
	if id := item.ID(); id != "" {
		return "id:" + id
	}
	data, err := item.Encode()
	if err != nil {
		return ""
	}
	return "doc:" + string(data)
}

// sortNewestFirst orders items by the date field, newest first. Items with an
// unparseable date go last; ties break on id so the result does not depend
// on input order.
func sortNewestFirst(items []record.Record, field string) {
	type sortKey struct {
		t  time.Time
		ok bool
		id string
	}
	keyed := make([]struct {
		key  sortKey
		item record.Record
	}, len(items))
	for i, item := range items {
		t, ok := item.Time(field)
		keyed[i].key = sortKey{t, ok, item.ID()}
		keyed[i].item = item
	}

	sort.SliceStable(keyed, func(i, j int) bool {
		a, b := keyed[i].key, keyed[j].key
		if a.ok != b.ok {
			return a.ok
		}
		if !a.t.Equal(b.t) {
			return a.t.After(b.t)
		}
		return a.id < b.id
	})
	for i := range keyed {
		items[i] = keyed[i].item
	}
}

// keepLatest sets lastUpdated on out to the later of the two sides.
func keepLatest(out, local, server record.Record) {
	if localNewer(local, server) {
		out[record.FieldLastUpdated] = local[record.FieldLastUpdated]
	}
}

func hasField(a, b record.Record, field string) bool {
	_, inA := a[field]
	_, inB := b[field]
	return inA || inB
}

func cloneField(v any) any {
	return record.Record{"v": v}.Clone()["v"]
}
