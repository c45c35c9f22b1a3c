package models

// Subtask is one checklist item of an event.
type Subtask struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// CloneSubtasks returns a copy that shares no backing array with s.
func CloneSubtasks(s []Subtask) []Subtask {
	if s == nil {
		return nil
	}
	out := make([]Subtask, len(s))
	copy(out, s)
	return out
}

// SubtaskProgress counts finished items.
func SubtaskProgress(s []Subtask) (done, total int) {
	for _, st := range s {
		if st.Completed {
			done++
		}
	}
	return done, len(s)
}
