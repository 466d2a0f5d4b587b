package entity

// Progress is the numeric pipeline stage of an order. The codes are labels,
// not a workflow guard: any code may be set to any other code.
type Progress int

const (
	ProgressIntake    Progress = 1
	ProgressQuoting   Progress = 2
	ProgressBooked    Progress = 3
	ProgressCompleted Progress = 4
	ProgressInvoiced  Progress = 5
	ProgressPaid      Progress = 6
)

var progressLabels = map[Progress]string{
	ProgressIntake:    "Intake",
	ProgressQuoting:   "Quoting",
	ProgressBooked:    "Booked",
	ProgressCompleted: "Completed",
	ProgressInvoiced:  "Invoiced",
	ProgressPaid:      "Paid",
}

// Valid reports whether p is one of the defined pipeline stages.
func (p Progress) Valid() bool {
	_, ok := progressLabels[p]
	return ok
}

// Label returns the human-readable stage label, or "" for unknown codes.
func (p Progress) Label() string {
	return progressLabels[p]
}

// ProgressLabels returns the full code-to-label table in code order.
func ProgressLabels() map[Progress]string {
	out := make(map[Progress]string, len(progressLabels))
	for code, label := range progressLabels {
		out[code] = label
	}
	return out
}
