package broker

// Every instance consumes the whole subject and delivers to the sessions it
// holds locally.
var (
	StreamName     = "EVENTS"
	SubjectUsers   = StreamName + "." + "users"
	streamSubjects = []string{StreamName + ".>"}
)
