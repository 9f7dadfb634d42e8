package tasks

const (
	msgNoData             = "Datos no proporcionados."
	msgTitleRequired      = "El campo 'title' es obligatorio."
	msgDescriptionMissing = "El campo 'description' es obligatorio."
	msgCompletedRequired  = "El campo 'completed' es obligatorio."
	msgCompletedNotBool   = "El campo 'completed' debe ser un booleano."
)

// Validate checks that rec describes a full task. It returns the message for
// the first rule broken, or "" when rec is valid. Rules are checked in a
// fixed order so the message for a given record is always the same.
func Validate(rec Record) string {
	if len(rec) == 0 {
		return msgNoData
	}
	if _, ok := rec["title"]; !ok {
		return msgTitleRequired
	}
	if _, ok := rec["description"]; !ok {
		return msgDescriptionMissing
	}
	completed, ok := rec["completed"]
	if !ok {
		return msgCompletedRequired
	}
	// "true" or 1 are not booleans here; only the XML codec turns text
	// into a bool, and it does so before validation.
	if _, ok := completed.(bool); !ok {
		return msgCompletedNotBool
	}
	return ""
}
